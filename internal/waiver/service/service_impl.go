package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/waiver/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("waiver.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreateRule(ctx context.Context, req domain.CreateRuleRequest) (domain.WaiverRule, error) {
	if req.StudentID == 0 {
		return domain.WaiverRule{}, domain.ErrInvalidStudent
	}
	if req.AcademicYearID == 0 {
		return domain.WaiverRule{}, domain.ErrInvalidAcademicYear
	}
	heads := uniqueIDs(req.FeeHeadIDs)
	if len(heads) == 0 {
		return domain.WaiverRule{}, domain.ErrInvalidFeeHeads
	}
	if req.WaiverPercent.IsNegative() || req.WaiverPercent.GreaterThan(hundred) {
		return domain.WaiverRule{}, domain.ErrInvalidPercent
	}

	rule := domain.WaiverRule{
		ID:             s.genID.Generate(),
		StudentID:      req.StudentID,
		AcademicYearID: req.AcademicYearID,
		FeeHeadIDs:     datatypes.JSONSlice[snowflake.ID](heads),
		WaiverPercent:  req.WaiverPercent.Round(2),
		Note:           strings.TrimSpace(req.Note),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &rule); err != nil {
		return domain.WaiverRule{}, err
	}

	s.log.Info("waiver rule created",
		zap.String("waiver_rule_id", rule.ID.String()),
		zap.String("student_id", rule.StudentID.String()),
		zap.String("waiver_percent", rule.WaiverPercent.StringFixed(2)),
	)
	s.audit(ctx, "waiver_rule.create", rule.ID, map[string]any{
		"student_id":       rule.StudentID.String(),
		"academic_year_id": rule.AcademicYearID.String(),
		"fee_head_count":   len(heads),
		"waiver_percent":   rule.WaiverPercent.StringFixed(2),
	})
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, req domain.ListRulesRequest) ([]domain.WaiverRule, error) {
	if req.StudentID == 0 {
		return nil, domain.ErrInvalidStudent
	}
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		StudentID:      req.StudentID,
		AcademicYearID: req.AcademicYearID,
	})
	if err != nil {
		return nil, err
	}
	rules := make([]domain.WaiverRule, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rules = append(rules, *item)
	}
	return rules, nil
}

func (s *Service) DeleteRule(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return domain.ErrInvalidID
	}
	deleted, err := s.repo.Delete(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.audit(ctx, "waiver_rule.delete", id, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "waiver_rule", &id, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
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
