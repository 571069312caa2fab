package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// FeeHead is a named kind of fee such as tuition or boarding.
type FeeHead struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (FeeHead) TableName() string { return "fee_heads" }

// FeeDefinition prices one fee head for one class and academic year.
// The ledger never mutates it.
type FeeDefinition struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	FeeHeadID      snowflake.ID    `gorm:"not null;index" json:"fee_head_id"`
	StudentClassID snowflake.ID    `gorm:"not null;index:idx_fee_definitions_class_year,priority:1" json:"student_class_id"`
	AcademicYearID snowflake.ID    `gorm:"not null;index:idx_fee_definitions_class_year,priority:2" json:"academic_year_id"`
	FundID         snowflake.ID    `gorm:"not null" json:"fund_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	IsBoarding     bool            `gorm:"not null;default:false" json:"is_boarding"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`

	FeeHeadCode string `gorm:"->;-:migration" json:"fee_head_code,omitempty"`
	FeeHeadName string `gorm:"->;-:migration" json:"fee_head_name,omitempty"`
}

func (FeeDefinition) TableName() string { return "fee_definitions" }
