package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status is derived from amounts on every reconciliation and never set directly.
type Status string

const (
	StatusUnpaid  Status = "UNPAID"
	StatusPartial Status = "PARTIAL"
	StatusPaid    Status = "PAID"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid:
		return true
	}
	return false
}

// ParseStatus accepts any casing. An empty string is not a status.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

// LedgerEntry records what has been paid, discounted and waived against one
// fee definition for one student. At most one exists per pair.
type LedgerEntry struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	StudentID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_ledger_entries_student_fee,priority:1" json:"student_id"`
	FeeDefinitionID snowflake.ID    `gorm:"not null;uniqueIndex:ux_ledger_entries_student_fee,priority:2" json:"fee_definition_id"`
	FundID          snowflake.ID    `gorm:"not null" json:"fund_id"`
	AcademicYearID  snowflake.ID    `gorm:"not null;index" json:"academic_year_id"`
	AmountPaidTotal decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount_paid_total"`
	DiscountAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"discount_amount"`
	WaiverAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"waiver_amount"`
	Status          Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	Version         int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Tombstone withdraws fee definitions from one student.
type Tombstone struct {
	ID               snowflake.ID                      `gorm:"primaryKey" json:"id"`
	StudentID        snowflake.ID                      `gorm:"not null;index" json:"student_id"`
	FeeDefinitionIDs datatypes.JSONSlice[snowflake.ID] `gorm:"not null" json:"fee_definition_ids"`
	Reason           string                            `gorm:"type:text" json:"reason,omitempty"`
	CreatedAt        time.Time                         `gorm:"not null" json:"created_at"`
}

func (Tombstone) TableName() string { return "fee_tombstones" }

func (t Tombstone) Covers(feeDefinitionID snowflake.ID) bool {
	for _, id := range t.FeeDefinitionIDs {
		if id == feeDefinitionID {
			return true
		}
	}
	return false
}

// Payable is the breakdown of what a student owes on one fee before payments.
type Payable struct {
	FeeAmount          decimal.Decimal `json:"fee_amount"`
	WaiverAmount       decimal.Decimal `json:"waiver_amount"`
	PayableAfterWaiver decimal.Decimal `json:"payable_after_waiver"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	FinalPayable       decimal.Decimal `json:"final_payable"`
}

// Reconciliation is the derived payment position of one entry.
type Reconciliation struct {
	TotalPaid decimal.Decimal `json:"total_paid"`
	Due       decimal.Decimal `json:"due"`
	Overpaid  decimal.Decimal `json:"overpaid"`
	Status    Status          `json:"status"`
}

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)
