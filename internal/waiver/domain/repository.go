package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StudentID      snowflake.ID
	AcademicYearID snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *WaiverRule) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WaiverRule, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*WaiverRule, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
