package reconcile

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

// CalculatePayable subtracts waiver then discount from the fee. A discount
// larger than what remains after the waiver is rejected, not clamped.
func CalculatePayable(fee, waiver, discount decimal.Decimal) (domain.Payable, error) {
	if fee.IsNegative() || waiver.IsNegative() || discount.IsNegative() {
		return domain.Payable{}, domain.ErrInvalidAmount
	}
	fee = fee.Round(2)
	waiver = decimal.Min(waiver.Round(2), fee)
	discount = discount.Round(2)

	afterWaiver := nonNegative(fee.Sub(waiver))
	if discount.GreaterThan(afterWaiver) {
		return domain.Payable{}, domain.ErrDiscountExceedsPayable
	}

	return domain.Payable{
		FeeAmount:          fee,
		WaiverAmount:       waiver,
		PayableAfterWaiver: afterWaiver,
		DiscountAmount:     discount,
		FinalPayable:       afterWaiver.Sub(discount),
	}, nil
}

// StoredPayable rebuilds the payable of a persisted entry. Stored amounts
// already passed validation, so it clamps instead of failing.
func StoredPayable(fee, waiver, discount decimal.Decimal) domain.Payable {
	fee = nonNegative(fee.Round(2))
	waiver = decimal.Min(nonNegative(waiver.Round(2)), fee)
	afterWaiver := fee.Sub(waiver)
	discount = decimal.Min(nonNegative(discount.Round(2)), afterWaiver)
	return domain.Payable{
		FeeAmount:          fee,
		WaiverAmount:       waiver,
		PayableAfterWaiver: afterWaiver,
		DiscountAmount:     discount,
		FinalPayable:       afterWaiver.Sub(discount),
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
