package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/reconcile"
	"github.com/smallbiznis/feeledger/internal/observability/logger"
	"github.com/smallbiznis/feeledger/internal/observability/tracing"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxWriteAttempts covers the first write, one duplicate-key replan and one
// lost version race.
const maxWriteAttempts = 3

// batchState is the read-only view every item of one submission plans against.
type batchState struct {
	batchID    string
	studentID  snowflake.ID
	defs       map[snowflake.ID]catalogdomain.FeeDefinition
	rules      []waiverdomain.WaiverRule
	tombstones []domain.Tombstone
	precedence reconcile.Precedence
	log        *zap.Logger
}

func (s *Service) SubmitPayments(ctx context.Context, req domain.SubmitPaymentsRequest) (domain.SubmitPaymentsResponse, error) {
	if req.StudentID == 0 {
		return domain.SubmitPaymentsResponse{}, domain.ErrInvalidStudent
	}
	if len(req.Items) == 0 {
		return domain.SubmitPaymentsResponse{}, domain.ErrEmptyBatch
	}
	for _, item := range req.Items {
		if item.FeeDefinitionID == 0 {
			return domain.SubmitPaymentsResponse{}, domain.ErrInvalidFeeDefinition
		}
	}

	batchID := ulid.Make().String()
	ctx, span := s.tracer.Start(ctx, "feeledger.SubmitPayments")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("feeledger.batch_id", batchID),
		attribute.Int("feeledger.items", len(req.Items)),
	)...)

	log := logger.WithBatch(logger.WithStudent(logger.WithContext(ctx, s.log), req.StudentID.String()), batchID)

	state, entries, err := s.loadBatchState(ctx, req)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "load batch state")
		return domain.SubmitPaymentsResponse{}, err
	}
	state.batchID = batchID
	state.log = log

	selections := make([]reconcile.Selection, 0, len(req.Items))
	for _, item := range req.Items {
		selections = append(selections, reconcile.Selection{
			FeeDefinitionID: item.FeeDefinitionID,
			PaymentNow:      item.Amount,
			Discount:        item.Discount,
		})
	}
	planned := reconcile.Plan(reconcile.PlanInput{
		StudentID:   req.StudentID,
		Selections:  selections,
		Definitions: mapValues(state.defs),
		Rules:       state.rules,
		Entries:     entries,
		Tombstones:  state.tombstones,
		Precedence:  state.precedence,
	})

	outcomes := make([]domain.ItemOutcome, len(planned))
	var g errgroup.Group
	g.SetLimit(s.policy.Get().SubmitConcurrency)
	for i := range planned {
		if ctx.Err() != nil {
			outcomes[i] = s.failure(ctx, state, planned[i], domain.ErrCancelled)
			continue
		}
		g.Go(func() error {
			outcomes[i] = s.applyItem(ctx, state, selections[i], planned[i])
			return nil
		})
	}
	_ = g.Wait()

	resp := domain.SubmitPaymentsResponse{BatchID: batchID, Items: outcomes}
	for _, o := range outcomes {
		if o.Outcome == domain.OutcomeSuccess {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	span.SetAttributes(
		attribute.Int("feeledger.succeeded", resp.Succeeded),
		attribute.Int("feeledger.failed", resp.Failed),
	)
	log.Info("payment batch reconciled",
		zap.Int("items", len(outcomes)),
		zap.Int("succeeded", resp.Succeeded),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}

func (s *Service) loadBatchState(ctx context.Context, req domain.SubmitPaymentsRequest) (*batchState, []domain.LedgerEntry, error) {
	ids := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.FeeDefinitionID)
	}
	ids = uniqueIDs(ids)

	defs, err := s.catalogSvc.FindFeeDefinitions(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load fee definitions: %w", err)
	}
	rules, err := s.waiverSvc.ListRules(ctx, waiverdomain.ListRulesRequest{StudentID: req.StudentID})
	if err != nil {
		return nil, nil, fmt.Errorf("load waiver rules: %w", err)
	}
	tombstones, err := s.repo.ListTombstones(ctx, s.db, req.StudentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load tombstones: %w", err)
	}
	entries, err := s.repo.ListEntriesByStudent(ctx, s.db, req.StudentID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load ledger entries: %w", err)
	}

	byID := make(map[snowflake.ID]catalogdomain.FeeDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}
	return &batchState{
		studentID:  req.StudentID,
		defs:       byID,
		rules:      rules,
		tombstones: derefTombstones(tombstones),
		precedence: s.precedence(),
	}, derefEntries(entries), nil
}

// applyItem writes one planned item. A create that collides with a concurrent
// writer is reloaded and replanned as an update, and so is an update that
// lost the version race.
func (s *Service) applyItem(ctx context.Context, state *batchState, sel reconcile.Selection, item reconcile.PlannedItem) domain.ItemOutcome {
	if !item.OK() {
		return s.failure(ctx, state, item, item.Err)
	}
	if err := ctx.Err(); err != nil {
		return s.failure(ctx, state, item, domain.ErrCancelled)
	}

	ctx, span := s.tracer.Start(ctx, "feeledger.applyItem")
	defer span.End()
	span.SetAttributes(attribute.String("feeledger.fee_definition_id", item.FeeDefinitionID.String()))

	release, err := s.guard.LockPair(ctx, state.studentID, item.FeeDefinitionID)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockTimeout) {
			err = domain.ErrEntryConflict
		}
		return s.failure(ctx, state, item, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			state.log.Warn("failed to release ledger lock", zap.Error(err))
		}
	}()

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if !item.OK() {
			return s.failure(ctx, state, item, item.Err)
		}

		applied, err := s.write(ctx, &item)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "ledger write")
			return s.failure(ctx, state, item, err)
		}
		if applied {
			return s.success(ctx, state, sel, item)
		}

		state.log.Debug("ledger write raced, replanning",
			zap.String("fee_definition_id", item.FeeDefinitionID.String()),
			zap.String("operation", string(item.Operation)),
			zap.Int("attempt", attempt),
		)
		item, err = s.replan(ctx, state, sel)
		if err != nil {
			return s.failure(ctx, state, item, err)
		}
	}
	return s.failure(ctx, state, item, domain.ErrEntryConflict)
}

// write reports false when a concurrent writer changed the pair first.
func (s *Service) write(ctx context.Context, item *reconcile.PlannedItem) (bool, error) {
	now := s.clock.Now().UTC()
	switch item.Operation {
	case domain.OperationCreate:
		item.Entry.ID = s.genID.Generate()
		item.Entry.Version = 1
		item.Entry.CreatedAt = now
		item.Entry.UpdatedAt = now
		if err := s.repo.InsertEntry(ctx, s.db, &item.Entry); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	case domain.OperationUpdate:
		item.Entry.UpdatedAt = now
		return s.repo.UpdateEntry(ctx, s.db, &item.Entry, item.Entry.Version)
	default:
		return false, fmt.Errorf("unknown ledger operation %q", item.Operation)
	}
}

func (s *Service) replan(ctx context.Context, state *batchState, sel reconcile.Selection) (reconcile.PlannedItem, error) {
	current, err := s.repo.FindEntry(ctx, s.db, state.studentID, sel.FeeDefinitionID)
	if err != nil {
		return reconcile.PlannedItem{FeeDefinitionID: sel.FeeDefinitionID}, err
	}
	var entries []domain.LedgerEntry
	if current != nil {
		entries = []domain.LedgerEntry{*current}
	}
	return reconcile.PlanItem(state.studentID, sel, state.defs[sel.FeeDefinitionID], state.rules, entries, state.tombstones, state.precedence), nil
}

func (s *Service) success(ctx context.Context, state *batchState, sel reconcile.Selection, item reconcile.PlannedItem) domain.ItemOutcome {
	s.metrics.RecordLedgerUpsert(ctx, string(item.Operation), string(domain.OutcomeSuccess))

	entryID := item.Entry.ID
	due := item.Reconciliation.Due
	s.audit(ctx, "ledger_entry."+string(item.Operation), "ledger_entry", entryID, map[string]any{
		"batch_id":          state.batchID,
		"student_id":        state.studentID.String(),
		"fee_definition_id": item.FeeDefinitionID.String(),
		"payment":           sel.PaymentNow.StringFixed(2),
		"discount":          sel.Discount.StringFixed(2),
		"amount_paid_total": item.Entry.AmountPaidTotal.StringFixed(2),
		"status":            string(item.Entry.Status),
		"version":           item.Entry.Version,
	})
	return domain.ItemOutcome{
		FeeDefinitionID: item.FeeDefinitionID,
		Outcome:         domain.OutcomeSuccess,
		Operation:       item.Operation,
		EntryID:         &entryID,
		Status:          item.Entry.Status,
		Due:             &due,
	}
}

func (s *Service) failure(ctx context.Context, state *batchState, item reconcile.PlannedItem, cause error) domain.ItemOutcome {
	failure := &domain.UpsertFailure{FeeDefinitionID: item.FeeDefinitionID, Cause: cause}
	reason := failure.Reason()

	if item.Operation == "" {
		s.metrics.RecordPaymentRejection(ctx, reason)
	} else {
		s.metrics.RecordLedgerUpsert(ctx, string(item.Operation), string(domain.OutcomeFailure))
	}

	level := zap.InfoLevel
	if reason == "internal" {
		level = zap.ErrorLevel
	}
	state.log.Log(level, "payment item rejected",
		zap.String("fee_definition_id", item.FeeDefinitionID.String()),
		zap.String("reason", reason),
		zap.Error(cause),
	)

	out := domain.ItemOutcome{
		FeeDefinitionID: item.FeeDefinitionID,
		Outcome:         domain.OutcomeFailure,
		Operation:       item.Operation,
		Reason:          reason,
		Err:             failure,
	}
	if item.Operation == domain.OperationUpdate && item.Entry.ID != 0 {
		id := item.Entry.ID
		out.EntryID = &id
	}
	return out
}

func mapValues(m map[snowflake.ID]catalogdomain.FeeDefinition) []catalogdomain.FeeDefinition {
	out := make([]catalogdomain.FeeDefinition, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}
