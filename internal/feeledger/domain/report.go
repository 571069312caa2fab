package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	ReportStatusAll     = "all"
	ReportStatusUnpaid  = "unpaid"
	ReportStatusPartial = "partial"
	ReportStatusPaid    = "paid"
)

type View string

const (
	ViewHistory View = "history"
	ViewDue     View = "due"
)

type Granularity string

const (
	GranularityExact Granularity = "exact"
	GranularityMonth Granularity = "month"
)

// DateRange is inclusive on both ends.
type DateRange struct {
	Start       time.Time
	End         time.Time
	Granularity Granularity
}

type ReportFilter struct {
	Status    string
	FeeType   string
	StudentID snowflake.ID
	Boarding  *bool
	DateRange *DateRange
	View      View
}

// ReportRow is a ledger entry joined with its fee definition and head.
type ReportRow struct {
	ID              snowflake.ID    `json:"id"`
	StudentID       snowflake.ID    `json:"student_id"`
	FeeDefinitionID snowflake.ID    `json:"fee_definition_id"`
	FundID          snowflake.ID    `json:"fund_id"`
	AcademicYearID  snowflake.ID    `json:"academic_year_id"`
	AmountPaidTotal decimal.Decimal `json:"amount_paid_total"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	WaiverAmount    decimal.Decimal `json:"waiver_amount"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	FeeHeadID  snowflake.ID    `json:"fee_head_id"`
	FeeType    string          `json:"fee_type"`
	FeeTitle   string          `json:"fee_title"`
	IsBoarding bool            `json:"is_boarding"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	FeeAmount  decimal.Decimal `json:"fee_amount"`

	FinalPayable decimal.Decimal `gorm:"-" json:"final_payable"`
	Due          decimal.Decimal `gorm:"-" json:"due"`
	Overdue      bool            `gorm:"-" json:"overdue"`
}

type AgingBucket struct {
	Label   string
	MinDays int
	MaxDays *int
}

type AgingTotal struct {
	Label string          `json:"label"`
	Count int             `json:"count"`
	Due   decimal.Decimal `json:"due"`
}

type ReportSummary struct {
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalWaiver   decimal.Decimal `json:"total_waiver"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	TotalDue      decimal.Decimal `json:"total_due"`
	Count         int             `json:"count"`
	OverdueCount  int             `json:"overdue_count"`
	Aging         []AgingTotal    `json:"aging,omitempty"`
}

type Report struct {
	Rows    []ReportRow   `json:"rows"`
	Summary ReportSummary `json:"summary"`
}

// StatusTotal is one row of the ledger snapshot pushed to metrics.
type StatusTotal struct {
	Status      Status
	Count       int64
	Outstanding decimal.Decimal
}
