package service

import (
	"context"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/reconcile"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
)

// Statement lists every fee of the student's class and year with its current
// position. Withdrawn fees are listed as inactive and left out of the totals.
func (s *Service) Statement(ctx context.Context, req domain.StatementRequest) (domain.Statement, error) {
	if req.StudentID == 0 {
		return domain.Statement{}, domain.ErrInvalidStudent
	}
	if req.StudentClassID == 0 {
		return domain.Statement{}, catalogdomain.ErrInvalidStudentClass
	}
	if req.AcademicYearID == 0 {
		return domain.Statement{}, catalogdomain.ErrInvalidAcademicYear
	}

	ctx, span := s.tracer.Start(ctx, "feeledger.Statement")
	defer span.End()

	defs, err := s.catalogSvc.ListFeeDefinitions(ctx, catalogdomain.ListFeeDefinitionRequest{
		StudentClassID: req.StudentClassID,
		AcademicYearID: req.AcademicYearID,
		Boarding:       req.Boarding,
	})
	if err != nil {
		return domain.Statement{}, err
	}
	rules, err := s.waiverSvc.ListRules(ctx, waiverdomain.ListRulesRequest{
		StudentID:      req.StudentID,
		AcademicYearID: req.AcademicYearID,
	})
	if err != nil {
		return domain.Statement{}, err
	}
	entryRows, err := s.repo.ListEntriesByStudent(ctx, s.db, req.StudentID, nil)
	if err != nil {
		return domain.Statement{}, err
	}
	tombstoneRows, err := s.repo.ListTombstones(ctx, s.db, req.StudentID)
	if err != nil {
		return domain.Statement{}, err
	}
	entries := derefEntries(entryRows)
	tombstones := derefTombstones(tombstoneRows)

	now := s.clock.Now()
	precedence := s.precedence()
	stmt := domain.Statement{
		StudentID:      req.StudentID,
		StudentClassID: req.StudentClassID,
		AcademicYearID: req.AcademicYearID,
		Lines:          make([]domain.StatementLine, 0, len(defs)),
		Totals: domain.StatementTotals{
			FeeAmount:    decimal.Zero,
			WaiverAmount: decimal.Zero,
			Discount:     decimal.Zero,
			FinalPayable: decimal.Zero,
			Paid:         decimal.Zero,
			Due:          decimal.Zero,
		},
	}

	for _, def := range defs {
		lookup := reconcile.LookupEntry(entries, tombstones, req.StudentID, def.ID)
		line := domain.StatementLine{
			FeeDefinitionID: def.ID,
			FeeHeadID:       def.FeeHeadID,
			FeeType:         def.FeeHeadCode,
			FeeTitle:        def.FeeHeadName,
			IsBoarding:      def.IsBoarding,
			DueDate:         def.DueDate,
			Active:          lookup.Active,
		}

		// Withdrawn fees still show the entry recorded before withdrawal.
		entry := lookup.Entry
		if entry == nil {
			entry = reconcile.FindEntry(entries, req.StudentID, def.ID)
		}

		paid := decimal.Zero
		if entry != nil {
			id := entry.ID
			line.EntryID = &id
			line.Payable = reconcile.StoredPayable(def.Amount, entry.WaiverAmount, entry.DiscountAmount)
			paid = entry.AmountPaidTotal
		} else {
			_, pct := reconcile.ResolveWaiver(def, req.StudentID, req.AcademicYearID, rules, precedence)
			line.Payable = reconcile.StoredPayable(def.Amount, reconcile.WaiverAmount(def.Amount, pct), decimal.Zero)
		}

		rec, err := reconcile.ReconcileStatus(reconcile.StatusInput{
			FinalPayable:   line.Payable.FinalPayable,
			PreviouslyPaid: paid,
		})
		if err != nil {
			return domain.Statement{}, err
		}
		line.Reconciliation = rec
		line.Overdue = lookup.Active && rec.Due.IsPositive() && def.DueDate != nil && def.DueDate.Before(now)
		stmt.Lines = append(stmt.Lines, line)

		if !lookup.Active {
			continue
		}
		t := &stmt.Totals
		t.FeeAmount = t.FeeAmount.Add(line.Payable.FeeAmount)
		t.WaiverAmount = t.WaiverAmount.Add(line.Payable.WaiverAmount)
		t.Discount = t.Discount.Add(line.Payable.DiscountAmount)
		t.FinalPayable = t.FinalPayable.Add(line.Payable.FinalPayable)
		t.Paid = t.Paid.Add(rec.TotalPaid)
		t.Due = t.Due.Add(rec.Due)
	}
	return stmt, nil
}
