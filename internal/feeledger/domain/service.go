package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type StatementRequest struct {
	StudentID      snowflake.ID
	StudentClassID snowflake.ID
	AcademicYearID snowflake.ID
	Boarding       *bool
}

type StatementLine struct {
	FeeDefinitionID snowflake.ID  `json:"fee_definition_id"`
	FeeHeadID       snowflake.ID  `json:"fee_head_id"`
	FeeType         string        `json:"fee_type"`
	FeeTitle        string        `json:"fee_title"`
	IsBoarding      bool          `json:"is_boarding"`
	DueDate         *time.Time    `json:"due_date,omitempty"`
	Active          bool          `json:"active"`
	EntryID         *snowflake.ID `json:"entry_id,omitempty"`
	Payable
	Reconciliation
	Overdue bool `json:"overdue"`
}

type StatementTotals struct {
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	WaiverAmount decimal.Decimal `json:"waiver_amount"`
	Discount     decimal.Decimal `json:"discount_amount"`
	FinalPayable decimal.Decimal `json:"final_payable"`
	Paid         decimal.Decimal `json:"paid"`
	Due          decimal.Decimal `json:"due"`
}

type Statement struct {
	StudentID      snowflake.ID    `json:"student_id"`
	StudentClassID snowflake.ID    `json:"student_class_id"`
	AcademicYearID snowflake.ID    `json:"academic_year_id"`
	Lines          []StatementLine `json:"lines"`
	Totals         StatementTotals `json:"totals"`
}

type PaymentItem struct {
	FeeDefinitionID snowflake.ID
	Amount          decimal.Decimal
	Discount        decimal.Decimal
}

type SubmitPaymentsRequest struct {
	StudentID snowflake.ID
	Items     []PaymentItem
}

type ItemOutcome struct {
	FeeDefinitionID snowflake.ID     `json:"fee_definition_id"`
	Outcome         Outcome          `json:"outcome"`
	Operation       Operation        `json:"operation,omitempty"`
	EntryID         *snowflake.ID    `json:"entry_id,omitempty"`
	Status          Status           `json:"status,omitempty"`
	Due             *decimal.Decimal `json:"due,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Err             error            `json:"-"`
}

type SubmitPaymentsResponse struct {
	BatchID   string        `json:"batch_id"`
	Items     []ItemOutcome `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

type WithdrawFeesRequest struct {
	StudentID        snowflake.ID
	FeeDefinitionIDs []snowflake.ID
	Reason           string
}

type Service interface {
	Statement(ctx context.Context, req StatementRequest) (Statement, error)
	SubmitPayments(ctx context.Context, req SubmitPaymentsRequest) (SubmitPaymentsResponse, error)
	WithdrawFees(ctx context.Context, req WithdrawFeesRequest) (Tombstone, error)
	ListTombstones(ctx context.Context, studentID snowflake.ID) ([]Tombstone, error)
	GetEntry(ctx context.Context, id snowflake.ID) (LedgerEntry, error)
	Report(ctx context.Context, filter ReportFilter) (Report, error)
	Snapshot(ctx context.Context) ([]StatusTotal, error)
}
