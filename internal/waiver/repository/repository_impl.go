package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeledger/internal/waiver/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *domain.WaiverRule) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO waiver_rules (
			id, student_id, academic_year_id, fee_head_ids, waiver_percent, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.StudentID,
		rule.AcademicYearID,
		rule.FeeHeadIDs,
		rule.WaiverPercent,
		rule.Note,
		rule.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WaiverRule, error) {
	var rule domain.WaiverRule
	err := db.WithContext(ctx).
		Model(&domain.WaiverRule{}).
		Where("id = ?", id).
		Limit(1).
		Find(&rule).Error
	if err != nil {
		return nil, err
	}
	if rule.ID == 0 {
		return nil, nil
	}
	return &rule, nil
}

// List returns rules in creation order; first-match waiver resolution
// depends on it.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.WaiverRule, error) {
	stmt := db.WithContext(ctx).Model(&domain.WaiverRule{})
	if filter.StudentID != 0 {
		stmt = stmt.Where("student_id = ?", filter.StudentID)
	}
	if filter.AcademicYearID != 0 {
		stmt = stmt.Where("academic_year_id = ?", filter.AcademicYearID)
	}

	var rules []*domain.WaiverRule
	if err := stmt.Order("created_at asc, id asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM waiver_rules WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
