package allocator

import (
	"github.com/shopspring/decimal"
)

// allocation is the interest-first split of one incoming payment.
type allocation struct {
	Interest  decimal.Decimal
	Principal decimal.Decimal
	Excess    decimal.Decimal
}

// splitPayment applies the amount to interest first, then to the scheduled
// principal, and keeps anything beyond both as excess. The excess is later
// applied as additional principal reduction on the loan, never refunded.
func splitPayment(amount, interestRemaining, principalRemaining decimal.Decimal) allocation {
	a := allocation{
		Interest:  decimal.Zero,
		Principal: decimal.Zero,
		Excess:    decimal.Zero,
	}

	left := amount

	a.Interest = left
	if a.Interest.GreaterThan(interestRemaining) {
		a.Interest = interestRemaining
	}
	left = left.Sub(a.Interest)

	a.Principal = left
	if a.Principal.GreaterThan(principalRemaining) {
		a.Principal = principalRemaining
	}
	left = left.Sub(a.Principal)

	a.Excess = left
	return a
}
