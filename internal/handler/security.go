package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/voltmart/storefront/internal/domain/auth"
	"github.com/voltmart/storefront/pkg/apierror"
)

// apiKeyHeader carries the caller's API key.
const apiKeyHeader = "X-API-Key"

type identityKey struct{}

// identityFrom returns the authenticated key info stored by Authenticate.
func identityFrom(ctx context.Context) *auth.APIKeyInfo {
	info, _ := ctx.Value(identityKey{}).(*auth.APIKeyInfo)
	return info
}

// Security authenticates API requests via HMAC-SHA256 hashed API keys and
// enforces per-route scopes.
type Security struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurity creates a Security with the given API key repository and HMAC
// pepper.
func NewSecurity(apikeys auth.Repository, pepper []byte) *Security {
	return &Security{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Authenticate verifies the API key header by computing its HMAC-SHA256,
// looking it up in the repository, and performing a constant-time comparison
// to prevent timing attacks. On success the key's identity is stored in the
// request context.
func (s *Security) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if key == "" {
			writeError(w, r, apierror.Unauthorized("missing API key"))
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)
		hexHash := hex.EncodeToString(hash)

		info, err := s.apikeys.FindByHash(r.Context(), hexHash)
		if err != nil {
			writeError(w, r, apierror.Unauthorized("invalid API key"))
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded; the stored hash could differ
		// from what we computed if the repository returns a stale/wrong row.
		storedBytes, err := hex.DecodeString(info.KeyHash)
		if err != nil {
			writeError(w, r, apierror.Unauthorized("invalid API key"))
			return
		}
		if subtle.ConstantTimeCompare(hash, storedBytes) != 1 {
			writeError(w, r, apierror.Unauthorized("invalid API key"))
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests whose key does not grant the
// given scope.
func (s *Security) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := identityFrom(r.Context())
			if info == nil || !info.HasScope(scope) {
				writeError(w, r, apierror.Forbidden("insufficient scope"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
