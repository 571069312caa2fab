package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"gorm.io/gorm"
)

const definitionColumns = `d.id, d.fee_head_id, d.student_class_id, d.academic_year_id, d.fund_id,
	d.amount, d.is_boarding, d.due_date, d.created_at, d.updated_at,
	h.code AS fee_head_code, h.name AS fee_head_name`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertHead(ctx context.Context, db *gorm.DB, head *domain.FeeHead) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fee_heads (id, code, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		head.ID,
		head.Code,
		head.Name,
		head.CreatedAt,
		head.UpdatedAt,
	).Error
}

func (r *repo) FindHeadByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FeeHead, error) {
	var head domain.FeeHead
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at, updated_at FROM fee_heads WHERE id = ?`,
		id,
	).Scan(&head).Error
	if err != nil {
		return nil, err
	}
	if head.ID == 0 {
		return nil, nil
	}
	return &head, nil
}

func (r *repo) FindHeadByCode(ctx context.Context, db *gorm.DB, code string) (*domain.FeeHead, error) {
	var head domain.FeeHead
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at, updated_at FROM fee_heads WHERE code = ?`,
		code,
	).Scan(&head).Error
	if err != nil {
		return nil, err
	}
	if head.ID == 0 {
		return nil, nil
	}
	return &head, nil
}

func (r *repo) ListHeads(ctx context.Context, db *gorm.DB) ([]*domain.FeeHead, error) {
	var heads []*domain.FeeHead
	err := db.WithContext(ctx).
		Model(&domain.FeeHead{}).
		Order("name asc, id asc").
		Find(&heads).Error
	if err != nil {
		return nil, err
	}
	return heads, nil
}

func (r *repo) InsertDefinition(ctx context.Context, db *gorm.DB, def *domain.FeeDefinition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fee_definitions (
			id, fee_head_id, student_class_id, academic_year_id, fund_id,
			amount, is_boarding, due_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID,
		def.FeeHeadID,
		def.StudentClassID,
		def.AcademicYearID,
		def.FundID,
		def.Amount,
		def.IsBoarding,
		def.DueDate,
		def.CreatedAt,
		def.UpdatedAt,
	).Error
}

func (r *repo) FindDefinitionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FeeDefinition, error) {
	var def domain.FeeDefinition
	err := r.definitions(ctx, db).
		Where("d.id = ?", id).
		Scan(&def).Error
	if err != nil {
		return nil, err
	}
	if def.ID == 0 {
		return nil, nil
	}
	return &def, nil
}

func (r *repo) FindDefinitionsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.FeeDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var defs []*domain.FeeDefinition
	err := r.definitions(ctx, db).
		Where("d.id IN ?", ids).
		Order("d.created_at asc, d.id asc").
		Scan(&defs).Error
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *repo) ListDefinitions(ctx context.Context, db *gorm.DB, filter domain.ListDefinitionFilter) ([]*domain.FeeDefinition, error) {
	stmt := r.definitions(ctx, db)
	if filter.StudentClassID != 0 {
		stmt = stmt.Where("d.student_class_id = ?", filter.StudentClassID)
	}
	if filter.AcademicYearID != 0 {
		stmt = stmt.Where("d.academic_year_id = ?", filter.AcademicYearID)
	}
	if filter.FeeHeadID != 0 {
		stmt = stmt.Where("d.fee_head_id = ?", filter.FeeHeadID)
	}
	if filter.Boarding != nil {
		stmt = stmt.Where("d.is_boarding = ?", *filter.Boarding)
	}

	var defs []*domain.FeeDefinition
	if err := stmt.Order("d.created_at asc, d.id asc").Scan(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *repo) definitions(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Table("fee_definitions AS d").
		Select(definitionColumns).
		Joins("JOIN fee_heads h ON h.id = d.fee_head_id")
}
