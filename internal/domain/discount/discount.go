package discount

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage applies a percentage of the order subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedAmount subtracts a fixed amount, capped at the subtotal.
	TypeFixedAmount Type = "fixed_amount"
	// TypeFreeShipping waives the shipping cost; the subtotal is untouched.
	TypeFreeShipping Type = "free_shipping"
)

var (
	// ErrNotFound is returned by id-based lookups when the discount does not exist.
	ErrNotFound = errors.New("discount not found")
	// ErrCodeExists is returned when creating a discount whose canonical code
	// is already taken.
	ErrCodeExists = errors.New("discount code already exists")
	// ErrUsageExhausted is returned by Repository.ConsumeUse when the
	// conditional increment finds the global usage cap already reached.
	ErrUsageExhausted = errors.New("discount usage exhausted")
)

// Rejection reasons surfaced to callers. Validation checks run in this order;
// the first failing one wins.
const (
	ReasonNotFound   = "Invalid discount code"
	ReasonInactive   = "Discount code is not active"
	ReasonExpired    = "Discount code has expired"
	ReasonNotStarted = "Discount code is not yet active"
	ReasonUsageLimit = "Discount code has reached its maximum usage limit"
)

// RuleError is a business-rule violation. It is an expected, client-facing
// failure, never an infrastructure fault.
type RuleError struct {
	Reason string
}

func (e *RuleError) Error() string {
	return e.Reason
}

// Discount is a redeemable discount code with its eligibility constraints.
// Zero values mean "no constraint": a zero MaxUsageCount is unbounded, a zero
// MinPurchaseAmount imposes no floor, a zero MaxDiscountAmount applies no cap.
type Discount struct {
	ID                uuid.UUID
	Code              string
	Type              Type
	Value             decimal.Decimal
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	MinPurchaseAmount decimal.Decimal
	MaxDiscountAmount decimal.Decimal
	MaxUsageCount     int
	MaxUsagePerUser   int
	UsageCount        int
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Canonicalize normalizes a discount code for storage and lookup.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides persistence for discounts and their redemption ledger.
type Repository interface {
	Create(ctx context.Context, d *Discount) error
	FindByCode(ctx context.Context, code string) (*Discount, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Discount, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error

	// UserUsageCount reports how many times the user has redeemed the discount.
	UserUsageCount(ctx context.Context, discountID uuid.UUID, userID string) (int, error)

	// ConsumeUse atomically increments the global usage counter and records a
	// ledger row for the user, in a single transaction. When the discount has
	// a global cap, the increment is conditional on the cap not being reached;
	// losing that race returns ErrUsageExhausted.
	ConsumeUse(ctx context.Context, discountID uuid.UUID, userID string) error
}
