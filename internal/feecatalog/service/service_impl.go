package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
		log:      p.Log.Named("feecatalog.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreateFeeHead(ctx context.Context, req domain.CreateFeeHeadRequest) (domain.FeeHead, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.FeeHead{}, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)
	if code == "" {
		return domain.FeeHead{}, domain.ErrInvalidCode
	}

	existing, err := s.repo.FindHeadByCode(ctx, s.db, code)
	if err != nil {
		return domain.FeeHead{}, err
	}
	if existing != nil {
		return domain.FeeHead{}, domain.ErrFeeHeadExists
	}

	now := time.Now().UTC()
	head := domain.FeeHead{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertHead(ctx, s.db, &head); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.FeeHead{}, domain.ErrFeeHeadExists
		}
		return domain.FeeHead{}, err
	}

	s.audit(ctx, "fee_head.create", "fee_head", head.ID, map[string]any{
		"code": head.Code,
		"name": head.Name,
	})
	return head, nil
}

func (s *Service) ListFeeHeads(ctx context.Context) ([]domain.FeeHead, error) {
	items, err := s.repo.ListHeads(ctx, s.db)
	if err != nil {
		return nil, err
	}
	heads := make([]domain.FeeHead, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		heads = append(heads, *item)
	}
	return heads, nil
}

func (s *Service) CreateFeeDefinition(ctx context.Context, req domain.CreateFeeDefinitionRequest) (domain.FeeDefinition, error) {
	switch {
	case req.FeeHeadID == 0:
		return domain.FeeDefinition{}, domain.ErrInvalidFeeHead
	case req.StudentClassID == 0:
		return domain.FeeDefinition{}, domain.ErrInvalidStudentClass
	case req.AcademicYearID == 0:
		return domain.FeeDefinition{}, domain.ErrInvalidAcademicYear
	case req.FundID == 0:
		return domain.FeeDefinition{}, domain.ErrInvalidFund
	case req.Amount.IsNegative():
		return domain.FeeDefinition{}, domain.ErrInvalidAmount
	}

	head, err := s.repo.FindHeadByID(ctx, s.db, req.FeeHeadID)
	if err != nil {
		return domain.FeeDefinition{}, err
	}
	if head == nil {
		return domain.FeeDefinition{}, domain.ErrInvalidFeeHead
	}

	now := time.Now().UTC()
	def := domain.FeeDefinition{
		ID:             s.genID.Generate(),
		FeeHeadID:      head.ID,
		StudentClassID: req.StudentClassID,
		AcademicYearID: req.AcademicYearID,
		FundID:         req.FundID,
		Amount:         req.Amount.Round(2),
		IsBoarding:     req.IsBoarding,
		CreatedAt:      now,
		UpdatedAt:      now,
		FeeHeadCode:    head.Code,
		FeeHeadName:    head.Name,
	}
	if req.DueDate != nil {
		due := req.DueDate.UTC()
		def.DueDate = &due
	}

	if err := s.repo.InsertDefinition(ctx, s.db, &def); err != nil {
		return domain.FeeDefinition{}, err
	}

	s.audit(ctx, "fee_definition.create", "fee_definition", def.ID, map[string]any{
		"fee_head_id":      def.FeeHeadID.String(),
		"student_class_id": def.StudentClassID.String(),
		"academic_year_id": def.AcademicYearID.String(),
		"amount":           def.Amount.StringFixed(2),
	})
	return def, nil
}

func (s *Service) GetFeeDefinition(ctx context.Context, id snowflake.ID) (domain.FeeDefinition, error) {
	if id == 0 {
		return domain.FeeDefinition{}, domain.ErrInvalidID
	}
	def, err := s.repo.FindDefinitionByID(ctx, s.db, id)
	if err != nil {
		return domain.FeeDefinition{}, err
	}
	if def == nil {
		return domain.FeeDefinition{}, domain.ErrNotFound
	}
	return *def, nil
}

func (s *Service) ListFeeDefinitions(ctx context.Context, req domain.ListFeeDefinitionRequest) ([]domain.FeeDefinition, error) {
	items, err := s.repo.ListDefinitions(ctx, s.db, domain.ListDefinitionFilter{
		StudentClassID: req.StudentClassID,
		AcademicYearID: req.AcademicYearID,
		FeeHeadID:      req.FeeHeadID,
		Boarding:       req.Boarding,
	})
	if err != nil {
		return nil, err
	}
	return derefDefinitions(items), nil
}

func (s *Service) FindFeeDefinitions(ctx context.Context, ids []snowflake.ID) ([]domain.FeeDefinition, error) {
	items, err := s.repo.FindDefinitionsByIDs(ctx, s.db, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	return derefDefinitions(items), nil
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

func derefDefinitions(items []*domain.FeeDefinition) []domain.FeeDefinition {
	defs := make([]domain.FeeDefinition, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		defs = append(defs, *item)
	}
	return defs
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
