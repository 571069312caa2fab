package reconcile

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

const (
	student snowflake.ID = 1
	feeDef  snowflake.ID = 2
	year    snowflake.ID = 10
	head    snowflake.ID = 20
	fund    snowflake.ID = 30
)

func definition(amount string) catalogdomain.FeeDefinition {
	return catalogdomain.FeeDefinition{
		ID:             feeDef,
		FeeHeadID:      head,
		AcademicYearID: year,
		FundID:         fund,
		Amount:         d(amount),
	}
}

func rule(id snowflake.ID, pct string, heads ...snowflake.ID) waiverdomain.WaiverRule {
	return waiverdomain.WaiverRule{
		ID:             id,
		StudentID:      student,
		AcademicYearID: year,
		FeeHeadIDs:     datatypes.JSONSlice[snowflake.ID](heads),
		WaiverPercent:  d(pct),
	}
}

func TestResolveWaiver(t *testing.T) {
	def := definition("1500")

	t.Run("no rules", func(t *testing.T) {
		picked, pct := ResolveWaiver(def, student, year, nil, PrecedenceFirstMatch)
		assert.Nil(t, picked)
		assert.True(t, pct.IsZero())
	})

	t.Run("scope must match", func(t *testing.T) {
		other := rule(1, "50", head)
		other.AcademicYearID = year + 1
		wrongHead := rule(2, "50", head+1)
		picked, pct := ResolveWaiver(def, student, year, []waiverdomain.WaiverRule{other, wrongHead}, PrecedenceFirstMatch)
		assert.Nil(t, picked)
		assert.True(t, pct.IsZero())
	})

	rules := []waiverdomain.WaiverRule{rule(1, "10", head), rule(2, "40", head), rule(3, "40", head)}

	t.Run("first match", func(t *testing.T) {
		picked, pct := ResolveWaiver(def, student, year, rules, PrecedenceFirstMatch)
		require.NotNil(t, picked)
		assert.Equal(t, snowflake.ID(1), picked.ID)
		assertMoney(t, "10.00", pct)
	})

	t.Run("highest ties to earlier rule", func(t *testing.T) {
		picked, pct := ResolveWaiver(def, student, year, rules, PrecedenceHighest)
		require.NotNil(t, picked)
		assert.Equal(t, snowflake.ID(2), picked.ID)
		assertMoney(t, "40.00", pct)
	})
}

func TestWaiverAmount(t *testing.T) {
	cases := []struct {
		amount, pct, want string
	}{
		{"1500", "20", "300.00"},
		{"100", "100", "100.00"},
		{"0", "50", "0.00"},
		{"333.33", "33.33", "111.10"},
		{"10.05", "50", "5.03"},
		{"100", "150", "100.00"},
		{"100", "-5", "0.00"},
	}
	for _, tc := range cases {
		assertMoney(t, tc.want, WaiverAmount(d(tc.amount), d(tc.pct)))
	}
}

func TestWaiverAmountBoundedForAllPercents(t *testing.T) {
	amount := d("1234.57")
	for pct := 0; pct <= 100; pct++ {
		got := WaiverAmount(amount, decimal.NewFromInt(int64(pct)))
		assert.False(t, got.IsNegative(), "pct %d", pct)
		assert.False(t, got.GreaterThan(amount), "pct %d", pct)
		assert.True(t, got.Equal(amount.Mul(decimal.NewFromInt(int64(pct))).Div(hundred).Round(2)), "pct %d", pct)
	}
}

func TestCalculatePayable(t *testing.T) {
	p, err := CalculatePayable(d("1500"), d("300"), d("100"))
	require.NoError(t, err)
	assertMoney(t, "1200.00", p.PayableAfterWaiver)
	assertMoney(t, "1100.00", p.FinalPayable)

	p, err = CalculatePayable(d("1500"), d("300"), d("1200"))
	require.NoError(t, err)
	assertMoney(t, "0.00", p.FinalPayable)

	_, err = CalculatePayable(d("1500"), d("300"), d("1200.01"))
	assert.ErrorIs(t, err, domain.ErrDiscountExceedsPayable)

	_, err = CalculatePayable(d("1500"), d("0"), d("-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = CalculatePayable(d("-1"), d("0"), d("0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCalculatePayableNeverNegative(t *testing.T) {
	fee := d("999.99")
	for pct := 0; pct <= 100; pct += 5 {
		waiver := WaiverAmount(fee, decimal.NewFromInt(int64(pct)))
		after := fee.Sub(waiver)
		for _, discount := range []decimal.Decimal{decimal.Zero, after.Div(decimal.NewFromInt(2)).Round(2), after, after.Add(d("0.01"))} {
			p, err := CalculatePayable(fee, waiver, discount)
			if discount.GreaterThan(after) {
				assert.ErrorIs(t, err, domain.ErrDiscountExceedsPayable)
				continue
			}
			require.NoError(t, err)
			assert.False(t, p.FinalPayable.IsNegative())
			assert.True(t, p.FinalPayable.Equal(fee.Sub(waiver).Sub(discount.Round(2))))
		}
	}
}

func TestLookupEntry(t *testing.T) {
	entries := []domain.LedgerEntry{
		{ID: 100, StudentID: student, FeeDefinitionID: feeDef},
		{ID: 101, StudentID: student + 1, FeeDefinitionID: feeDef},
	}
	tombstones := []domain.Tombstone{
		{ID: 1, StudentID: student, FeeDefinitionIDs: datatypes.JSONSlice[snowflake.ID]{feeDef + 1}},
		{ID: 2, StudentID: student + 1, FeeDefinitionIDs: datatypes.JSONSlice[snowflake.ID]{feeDef}},
	}

	got := LookupEntry(entries, tombstones, student, feeDef)
	assert.True(t, got.Active)
	require.NotNil(t, got.Entry)
	assert.Equal(t, snowflake.ID(100), got.Entry.ID)

	got = LookupEntry(entries, tombstones, student+1, feeDef)
	assert.False(t, got.Active)
	assert.Nil(t, got.Entry)

	got = LookupEntry(entries, tombstones, student, feeDef+5)
	assert.True(t, got.Active)
	assert.Nil(t, got.Entry)

	assert.False(t, IsActiveFor(tombstones, student, feeDef+1))
}

func TestReconcileStatus(t *testing.T) {
	cases := []struct {
		name                      string
		final, prev, now          string
		settled                   bool
		wantPaid, wantDue, wantOv string
		wantStatus                domain.Status
	}{
		{"full payment", "1100", "0", "1100", false, "1100.00", "0.00", "0.00", domain.StatusPaid},
		{"partial payment", "1100", "0", "500", false, "500.00", "600.00", "0.00", domain.StatusPartial},
		{"second instalment", "1100", "500", "600", false, "1100.00", "0.00", "0.00", domain.StatusPaid},
		{"nothing paid", "1100", "0", "0", false, "0.00", "1100.00", "0.00", domain.StatusUnpaid},
		{"overpayment", "1100", "1000", "200", false, "1200.00", "0.00", "100.00", domain.StatusPaid},
		{"zero payable", "0", "0", "0", false, "0.00", "0.00", "0.00", domain.StatusPaid},
		{"zero payment on settled", "1100", "1100", "0", true, "1100.00", "0.00", "0.00", domain.StatusPaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReconcileStatus(StatusInput{
				FinalPayable:   d(tc.final),
				PreviouslyPaid: d(tc.prev),
				PaymentNow:     d(tc.now),
				Settled:        tc.settled,
			})
			require.NoError(t, err)
			assertMoney(t, tc.wantPaid, got.TotalPaid)
			assertMoney(t, tc.wantDue, got.Due)
			assertMoney(t, tc.wantOv, got.Overpaid)
			assert.Equal(t, tc.wantStatus, got.Status)
		})
	}
}

func TestReconcileStatusRejects(t *testing.T) {
	_, err := ReconcileStatus(StatusInput{FinalPayable: d("100"), PaymentNow: d("-0.01")})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ReconcileStatus(StatusInput{FinalPayable: d("100"), PreviouslyPaid: d("100"), PaymentNow: d("1"), Settled: true})
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
}

func TestReconcileStatusIdempotentUnderZeroPayment(t *testing.T) {
	in := StatusInput{FinalPayable: d("750"), PreviouslyPaid: d("250"), PaymentNow: decimal.Zero}
	first, err := ReconcileStatus(in)
	require.NoError(t, err)

	in.PreviouslyPaid = first.TotalPaid
	second, err := ReconcileStatus(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeriveStatusMatchesAmounts(t *testing.T) {
	final := d("300")
	for _, paid := range []string{"0", "0.01", "150", "299.99", "300", "300.01"} {
		p := d(paid)
		got := DeriveStatus(final, p)
		switch {
		case p.GreaterThanOrEqual(final):
			assert.Equal(t, domain.StatusPaid, got, paid)
		case p.IsZero():
			assert.Equal(t, domain.StatusUnpaid, got, paid)
		default:
			assert.Equal(t, domain.StatusPartial, got, paid)
		}
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := domain.ParseStatus(" partial ")
	assert.True(t, ok)
	assert.Equal(t, domain.StatusPartial, s)

	_, ok = domain.ParseStatus("refunded")
	assert.False(t, ok)
}
