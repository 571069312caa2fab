package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListDefinitionFilter struct {
	StudentClassID snowflake.ID
	AcademicYearID snowflake.ID
	FeeHeadID      snowflake.ID
	Boarding       *bool
}

type Repository interface {
	InsertHead(ctx context.Context, db *gorm.DB, head *FeeHead) error
	FindHeadByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FeeHead, error)
	FindHeadByCode(ctx context.Context, db *gorm.DB, code string) (*FeeHead, error)
	ListHeads(ctx context.Context, db *gorm.DB) ([]*FeeHead, error)

	InsertDefinition(ctx context.Context, db *gorm.DB, def *FeeDefinition) error
	FindDefinitionByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FeeDefinition, error)
	FindDefinitionsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*FeeDefinition, error)
	ListDefinitions(ctx context.Context, db *gorm.DB, filter ListDefinitionFilter) ([]*FeeDefinition, error)
}
