package discount

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValidationResult is the non-throwing outcome of a code validation.
// When Valid is false, Reason carries the first failing check's explanation.
type ValidationResult struct {
	Valid    bool
	Discount *Discount
	Reason   string
}

// ApplyRequest holds the input for redeeming a discount code against an order.
type ApplyRequest struct {
	Code         string
	Subtotal     decimal.Decimal
	UserID       string
	ShippingCost decimal.Decimal
}

// Application is the outcome of a successful redemption.
type Application struct {
	DiscountAmount   decimal.Decimal
	FinalAmount      decimal.Decimal
	FreeShipping     bool
	ShippingDiscount decimal.Decimal
}

// UsageStats summarizes global redemption progress for a discount.
// RemainingUsage is nil when the discount has no global cap.
type UsageStats struct {
	TotalUsage      int
	RemainingUsage  *int
	UsagePercentage float64
}

// CreateParams holds the input for creating a discount.
type CreateParams struct {
	Code              string
	Type              Type
	Value             decimal.Decimal
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	MinPurchaseAmount decimal.Decimal
	MaxDiscountAmount decimal.Decimal
	MaxUsageCount     int
	MaxUsagePerUser   int
}

// Engine evaluates and redeems discount codes against order subtotals.
type Engine struct {
	repo Repository
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given Repository.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo, now: time.Now}
}

// Validate checks a code against its temporal, activation, and global usage
// constraints. Rule violations come back inside the result, not as errors;
// the error return is reserved for infrastructure failures.
func (e *Engine) Validate(ctx context.Context, code string) (ValidationResult, error) {
	d, err := e.repo.FindByCode(ctx, Canonicalize(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ValidationResult{Reason: ReasonNotFound}, nil
		}
		return ValidationResult{}, errors.Wrap(err, "lookup discount")
	}

	now := e.now()
	switch {
	case !d.Active:
		return ValidationResult{Reason: ReasonInactive}, nil
	case d.ExpiresAt != nil && now.After(*d.ExpiresAt):
		return ValidationResult{Reason: ReasonExpired}, nil
	case d.StartsAt != nil && now.Before(*d.StartsAt):
		return ValidationResult{Reason: ReasonNotStarted}, nil
	case d.MaxUsageCount > 0 && d.UsageCount >= d.MaxUsageCount:
		return ValidationResult{Reason: ReasonUsageLimit}, nil
	}

	return ValidationResult{Valid: true, Discount: d}, nil
}

// Apply redeems a code against an order subtotal for a user. It re-validates
// the code, enforces the minimum purchase and per-user limits, computes the
// adjustment, and consumes one use (global counter + per-user ledger row,
// atomically). Apply is not idempotent: a repeated call consumes another use.
func (e *Engine) Apply(ctx context.Context, req ApplyRequest) (*Application, error) {
	res, err := e.Validate(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		return nil, &RuleError{Reason: res.Reason}
	}
	d := res.Discount

	if d.MinPurchaseAmount.IsPositive() && req.Subtotal.LessThan(d.MinPurchaseAmount) {
		return nil, &RuleError{Reason: fmt.Sprintf(
			"Order subtotal %s is below the minimum purchase amount %s",
			req.Subtotal.StringFixed(2), d.MinPurchaseAmount.StringFixed(2),
		)}
	}

	if d.MaxUsagePerUser > 0 {
		used, err := e.repo.UserUsageCount(ctx, d.ID, req.UserID)
		if err != nil {
			return nil, errors.Wrap(err, "count user usage")
		}
		if used >= d.MaxUsagePerUser {
			return nil, &RuleError{Reason: "Discount code usage limit reached for this user"}
		}
	}

	amount := Amount(d, req.Subtotal)

	app := &Application{
		DiscountAmount: amount,
		FinalAmount:    floorAtZero(req.Subtotal.Sub(amount)).Round(2),
	}
	if d.Type == TypeFreeShipping {
		app.FreeShipping = true
		app.ShippingDiscount = floorAtZero(req.ShippingCost).Round(2)
	}

	if err := e.repo.ConsumeUse(ctx, d.ID, req.UserID); err != nil {
		// A concurrent Apply may have taken the last use between the
		// validation read and the increment.
		if errors.Is(err, ErrUsageExhausted) {
			return nil, &RuleError{Reason: ReasonUsageLimit}
		}
		return nil, errors.Wrap(err, "consume discount use")
	}

	return app, nil
}

// CalculateSavings previews the discount amount for a code without touching
// counters or enforcing eligibility. Unknown codes preview as zero.
func (e *Engine) CalculateSavings(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	d, err := e.repo.FindByCode(ctx, Canonicalize(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, nil
		}
		return zero, errors.Wrap(err, "lookup discount")
	}
	return Amount(d, subtotal), nil
}

// Stats reports global usage progress for a discount by id.
func (e *Engine) Stats(ctx context.Context, id uuid.UUID) (UsageStats, error) {
	d, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return UsageStats{}, err
	}

	stats := UsageStats{TotalUsage: d.UsageCount}
	if d.MaxUsageCount > 0 {
		remaining := d.MaxUsageCount - d.UsageCount
		if remaining < 0 {
			remaining = 0
		}
		stats.RemainingUsage = &remaining
		stats.UsagePercentage = float64(d.UsageCount) / float64(d.MaxUsageCount) * 100
	}
	return stats, nil
}

// Create validates and persists a new discount. The code is canonicalized to
// uppercase before storage; code and type are immutable afterwards.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*Discount, error) {
	if err := validateCreateParams(p); err != nil {
		return nil, err
	}

	now := e.now()
	d := &Discount{
		ID:                uuid.New(),
		Code:              Canonicalize(p.Code),
		Type:              p.Type,
		Value:             p.Value,
		StartsAt:          p.StartsAt,
		ExpiresAt:         p.ExpiresAt,
		MinPurchaseAmount: p.MinPurchaseAmount,
		MaxDiscountAmount: p.MaxDiscountAmount,
		MaxUsageCount:     p.MaxUsageCount,
		MaxUsagePerUser:   p.MaxUsagePerUser,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := e.repo.Create(ctx, d); err != nil {
		if errors.Is(err, ErrCodeExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create discount")
	}
	return d, nil
}

// Deactivate soft-disables a discount; the record and its ledger survive.
func (e *Engine) Deactivate(ctx context.Context, id uuid.UUID) error {
	return e.repo.SetActive(ctx, id, false)
}

// Delete hard-deletes a discount. Administrative use only; Deactivate is the
// normal retirement path.
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) error {
	return e.repo.Delete(ctx, id)
}

func validateCreateParams(p CreateParams) error {
	switch p.Type {
	case TypePercentage, TypeFixedAmount, TypeFreeShipping:
	default:
		return &RuleError{Reason: fmt.Sprintf("Unsupported discount type %q", p.Type)}
	}
	if Canonicalize(p.Code) == "" {
		return &RuleError{Reason: "Discount code is required"}
	}
	if p.Value.IsNegative() {
		return &RuleError{Reason: "Discount value must not be negative"}
	}
	if p.Type == TypePercentage && p.Value.GreaterThan(hundred) {
		return &RuleError{Reason: "Percentage value must be between 0 and 100"}
	}
	if p.MinPurchaseAmount.IsNegative() {
		return &RuleError{Reason: "Minimum purchase amount must not be negative"}
	}
	if p.MaxDiscountAmount.IsNegative() {
		return &RuleError{Reason: "Maximum discount amount must not be negative"}
	}
	return nil
}
