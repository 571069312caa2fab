package reconcile

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
)

type StatusInput struct {
	FinalPayable   decimal.Decimal
	PreviouslyPaid decimal.Decimal
	PaymentNow     decimal.Decimal
	// Settled is true when the existing entry is already PAID.
	Settled bool
}

func ReconcileStatus(in StatusInput) (domain.Reconciliation, error) {
	if in.PaymentNow.IsNegative() || in.PreviouslyPaid.IsNegative() || in.FinalPayable.IsNegative() {
		return domain.Reconciliation{}, domain.ErrInvalidAmount
	}
	if in.Settled && in.PaymentNow.IsPositive() {
		return domain.Reconciliation{}, domain.ErrAlreadySettled
	}

	final := in.FinalPayable.Round(2)
	totalPaid := in.PreviouslyPaid.Add(in.PaymentNow).Round(2)
	balance := final.Sub(totalPaid)

	return domain.Reconciliation{
		TotalPaid: totalPaid,
		Due:       nonNegative(balance),
		Overpaid:  nonNegative(balance.Neg()),
		Status:    DeriveStatus(final, totalPaid),
	}, nil
}

// DeriveStatus maps amounts to a status. A zero payable is PAID.
func DeriveStatus(finalPayable, totalPaid decimal.Decimal) domain.Status {
	switch {
	case totalPaid.GreaterThanOrEqual(finalPayable):
		return domain.StatusPaid
	case totalPaid.IsPositive():
		return domain.StatusPartial
	default:
		return domain.StatusUnpaid
	}
}
