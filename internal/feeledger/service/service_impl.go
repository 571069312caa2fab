package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/clock"
	"github.com/smallbiznis/feeledger/internal/config"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"github.com/smallbiznis/feeledger/internal/feeledger/reconcile"
	"github.com/smallbiznis/feeledger/internal/observability/metrics"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	CatalogSvc catalogdomain.Service
	WaiverSvc  waiverdomain.Service
	Policy     *config.PolicyHolder   `optional:"true"`
	Guard      *ratelimit.LedgerGuard `optional:"true"`
	Metrics    *metrics.Metrics       `optional:"true"`
	AuditSvc   auditdomain.Service    `optional:"true"`
	Clock      clock.Clock            `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	catalogSvc catalogdomain.Service
	waiverSvc  waiverdomain.Service
	policy     *config.PolicyHolder
	guard      *ratelimit.LedgerGuard
	metrics    *metrics.Metrics
	auditSvc   auditdomain.Service
	clock      clock.Clock
	tracer     trace.Tracer
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("feeledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		catalogSvc: p.CatalogSvc,
		waiverSvc:  p.WaiverSvc,
		policy:     p.Policy,
		guard:      p.Guard,
		metrics:    p.Metrics,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		tracer:     otel.Tracer("feeledger/service"),
	}
}

func (s *Service) GetEntry(ctx context.Context, id snowflake.ID) (domain.LedgerEntry, error) {
	if id == 0 {
		return domain.LedgerEntry{}, domain.ErrInvalidID
	}
	entry, err := s.repo.FindEntryByID(ctx, s.db, id)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if entry == nil {
		return domain.LedgerEntry{}, domain.ErrNotFound
	}
	return *entry, nil
}

func (s *Service) ListTombstones(ctx context.Context, studentID snowflake.ID) ([]domain.Tombstone, error) {
	if studentID == 0 {
		return nil, domain.ErrInvalidStudent
	}
	items, err := s.repo.ListTombstones(ctx, s.db, studentID)
	if err != nil {
		return nil, err
	}
	return derefTombstones(items), nil
}

// WithdrawFees tombstones definitions for a student. Existing ledger entries
// are kept; the fees just stop being payable.
func (s *Service) WithdrawFees(ctx context.Context, req domain.WithdrawFeesRequest) (domain.Tombstone, error) {
	if req.StudentID == 0 {
		return domain.Tombstone{}, domain.ErrInvalidStudent
	}
	ids := uniqueIDs(req.FeeDefinitionIDs)
	if len(ids) == 0 {
		return domain.Tombstone{}, domain.ErrInvalidFeeDefinition
	}

	defs, err := s.catalogSvc.FindFeeDefinitions(ctx, ids)
	if err != nil {
		return domain.Tombstone{}, err
	}
	if len(defs) != len(ids) {
		return domain.Tombstone{}, domain.ErrFeeDefinitionNotFound
	}

	tombstone := domain.Tombstone{
		ID:               s.genID.Generate(),
		StudentID:        req.StudentID,
		FeeDefinitionIDs: datatypes.JSONSlice[snowflake.ID](ids),
		Reason:           strings.TrimSpace(req.Reason),
		CreatedAt:        s.clock.Now().UTC(),
	}
	if err := s.repo.InsertTombstone(ctx, s.db, &tombstone); err != nil {
		return domain.Tombstone{}, err
	}

	s.log.Info("fees withdrawn",
		zap.String("student_id", req.StudentID.String()),
		zap.Int("fee_definitions", len(ids)),
	)
	s.audit(ctx, "fee.withdraw", "fee_tombstone", tombstone.ID, map[string]any{
		"student_id":         req.StudentID.String(),
		"fee_definition_ids": idStrings(ids),
		"reason":             tombstone.Reason,
	})
	return tombstone, nil
}

// Snapshot totals entries and outstanding balances by status.
func (s *Service) Snapshot(ctx context.Context) ([]domain.StatusTotal, error) {
	return s.repo.SumByStatus(ctx, s.db)
}

func (s *Service) precedence() reconcile.Precedence {
	if s.policy.Get().WaiverPrecedence == config.WaiverPrecedenceHighest {
		return reconcile.PrecedenceHighest
	}
	return reconcile.PrecedenceFirstMatch
}

func (s *Service) audit(ctx context.Context, action, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, targetType, &id, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func derefTombstones(items []*domain.Tombstone) []domain.Tombstone {
	out := make([]domain.Tombstone, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}

func derefEntries(items []*domain.LedgerEntry) []domain.LedgerEntry {
	out := make([]domain.LedgerEntry, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func idStrings(ids []snowflake.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
