package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/domain/discount"
	"github.com/voltmart/storefront/internal/domain/order"
	"github.com/voltmart/storefront/internal/domain/product"
	"github.com/voltmart/storefront/internal/domain/review"
	"github.com/voltmart/storefront/pkg/apierror"
)

// writeJSON writes a success response body.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a failure to the structured error payload. Operational
// errors log at warning level; internal faults log at error level and reach
// the caller only as a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	lg := zctx.From(r.Context())
	if apiErr.Operational() {
		lg.Warn("request rejected",
			zap.String("code", apiErr.Code),
			zap.String("reason", apiErr.Message),
		)
	} else {
		lg.Error("request failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_, _ = w.Write(encodeError(apiErr))
}

// encodeError renders the error envelope.
func encodeError(apiErr *apierror.Error) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Str(apiErr.Code)
	e.FieldStart("message")
	e.Str(apiErr.Message)
	if len(apiErr.Fields) > 0 {
		e.FieldStart("fields")
		e.ObjStart()
		for field, messages := range apiErr.Fields {
			e.FieldStart(field)
			e.ArrStart()
			for _, m := range messages {
				e.Str(m)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

// toAPIError translates domain errors into the error taxonomy. Unrecognized
// errors are internal faults.
func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var ruleErr *discount.RuleError
	if errors.As(err, &ruleErr) {
		return apierror.BadRequest(ruleErr.Reason)
	}

	var quantityErr *order.InvalidQuantityError
	if errors.As(err, &quantityErr) {
		return apierror.Validation(quantityErr.Error(), nil)
	}
	var productErr *order.ProductNotFoundError
	if errors.As(err, &productErr) {
		return apierror.Validation(productErr.Error(), nil)
	}

	switch {
	case errors.Is(err, discount.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, review.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return apierror.NotFound(unwrapMessage(err))
	case errors.Is(err, discount.ErrCodeExists),
		errors.Is(err, review.ErrAlreadyReviewed):
		return apierror.Conflict(unwrapMessage(err))
	case errors.Is(err, review.ErrRatingOutOfRange):
		return apierror.Validation("invalid review", map[string][]string{
			"rating": {review.ErrRatingOutOfRange.Error()},
		})
	case errors.Is(err, review.ErrNotAuthor):
		return apierror.Forbidden(review.ErrNotAuthor.Error())
	case errors.Is(err, review.ErrOwnReview):
		return apierror.BadRequest(review.ErrOwnReview.Error())
	case errors.Is(err, order.ErrEmptyItems):
		return apierror.BadRequest(order.ErrEmptyItems.Error())
	default:
		return apierror.Internal()
	}
}

// unwrapMessage reports the innermost sentinel's text, keeping wrap context
// out of caller-facing payloads.
func unwrapMessage(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}
