package discount

import "github.com/shopspring/decimal"

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Amount calculates the monetary discount against the given subtotal.
// Free-shipping discounts never touch the subtotal, so their amount is zero.
// The result is non-negative and rounded to 2 decimal places.
func Amount(d *Discount, subtotal decimal.Decimal) decimal.Decimal {
	switch d.Type {
	case TypePercentage:
		amount := subtotal.Mul(d.Value).Div(hundred)
		if d.MaxDiscountAmount.IsPositive() {
			amount = decimal.Min(amount, d.MaxDiscountAmount)
		}
		return floorAtZero(amount).Round(2)
	case TypeFixedAmount:
		// A fixed discount never exceeds the subtotal.
		return floorAtZero(decimal.Min(d.Value, subtotal)).Round(2)
	case TypeFreeShipping:
		return zero
	default:
		return zero
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
