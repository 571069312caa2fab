package reconcile

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
)

type Selection struct {
	FeeDefinitionID snowflake.ID
	PaymentNow      decimal.Decimal
	Discount        decimal.Decimal
}

// PlanInput is everything known about one student at submission time.
type PlanInput struct {
	StudentID   snowflake.ID
	Selections  []Selection
	Definitions []catalogdomain.FeeDefinition
	Rules       []waiverdomain.WaiverRule
	Entries     []domain.LedgerEntry
	Tombstones  []domain.Tombstone
	Precedence  Precedence
}

// PlannedItem is one create or update ready to be written. Entry carries the
// target state; for updates Entry.Version is the version the write expects.
type PlannedItem struct {
	FeeDefinitionID snowflake.ID
	Operation       domain.Operation
	Entry           domain.LedgerEntry
	Payable         domain.Payable
	Reconciliation  domain.Reconciliation
	Err             error
}

func (p PlannedItem) OK() bool { return p.Err == nil }

// Plan decides create versus update for every selection. Item errors stay on
// the item and never stop the rest of the batch.
func Plan(in PlanInput) []PlannedItem {
	defs := make(map[snowflake.ID]catalogdomain.FeeDefinition, len(in.Definitions))
	for _, def := range in.Definitions {
		defs[def.ID] = def
	}

	seen := make(map[snowflake.ID]struct{}, len(in.Selections))
	items := make([]PlannedItem, 0, len(in.Selections))
	for _, sel := range in.Selections {
		if _, dup := seen[sel.FeeDefinitionID]; dup {
			items = append(items, PlannedItem{FeeDefinitionID: sel.FeeDefinitionID, Err: domain.ErrDuplicateSelection})
			continue
		}
		seen[sel.FeeDefinitionID] = struct{}{}

		def, ok := defs[sel.FeeDefinitionID]
		if !ok {
			items = append(items, PlannedItem{FeeDefinitionID: sel.FeeDefinitionID, Err: domain.ErrFeeDefinitionNotFound})
			continue
		}
		items = append(items, PlanItem(in.StudentID, sel, def, in.Rules, in.Entries, in.Tombstones, in.Precedence))
	}
	return items
}

// PlanItem plans a single selection against a known definition.
func PlanItem(studentID snowflake.ID, sel Selection, def catalogdomain.FeeDefinition, rules []waiverdomain.WaiverRule, entries []domain.LedgerEntry, tombstones []domain.Tombstone, precedence Precedence) PlannedItem {
	item := PlannedItem{FeeDefinitionID: def.ID}

	if sel.PaymentNow.IsNegative() || sel.Discount.IsNegative() {
		item.Err = domain.ErrInvalidAmount
		return item
	}

	lookup := LookupEntry(entries, tombstones, studentID, def.ID)
	if !lookup.Active {
		item.Err = domain.ErrFeeInactive
		return item
	}

	_, pct := ResolveWaiver(def, studentID, def.AcademicYearID, rules, precedence)
	waiver := WaiverAmount(def.Amount, pct)

	discount := sel.Discount
	previouslyPaid := decimal.Zero
	settled := false
	if lookup.Entry != nil {
		// A waiver granted after the entry was recorded can shrink the payable
		// below the stored discount. Only the new discount is validated.
		stored := StoredPayable(def.Amount, waiver, lookup.Entry.DiscountAmount)
		discount = stored.DiscountAmount.Add(sel.Discount)
		previouslyPaid = lookup.Entry.AmountPaidTotal
		settled = lookup.Entry.Status == domain.StatusPaid
	}

	payable, err := CalculatePayable(def.Amount, waiver, discount)
	if err != nil {
		item.Err = err
		return item
	}

	rec, err := ReconcileStatus(StatusInput{
		FinalPayable:   payable.FinalPayable,
		PreviouslyPaid: previouslyPaid,
		PaymentNow:     sel.PaymentNow,
		Settled:        settled,
	})
	if err != nil {
		item.Err = err
		return item
	}

	item.Payable = payable
	item.Reconciliation = rec

	if lookup.Entry != nil {
		entry := *lookup.Entry
		entry.AmountPaidTotal = rec.TotalPaid
		entry.DiscountAmount = payable.DiscountAmount
		entry.WaiverAmount = payable.WaiverAmount
		entry.Status = rec.Status
		item.Operation = domain.OperationUpdate
		item.Entry = entry
		return item
	}

	item.Operation = domain.OperationCreate
	item.Entry = domain.LedgerEntry{
		StudentID:       studentID,
		FeeDefinitionID: def.ID,
		FundID:          def.FundID,
		AcademicYearID:  def.AcademicYearID,
		AmountPaidTotal: rec.TotalPaid,
		DiscountAmount:  payable.DiscountAmount,
		WaiverAmount:    payable.WaiverAmount,
		Status:          rec.Status,
	}
	return item
}
