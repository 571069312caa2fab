package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrDiscountExceedsPayable = errors.New("discount_exceeds_payable")
	ErrAlreadySettled         = errors.New("already_settled")
	ErrFeeInactive            = errors.New("fee_inactive")
	ErrFeeDefinitionNotFound  = errors.New("fee_definition_not_found")
	ErrDuplicateSelection     = errors.New("duplicate_selection")
	ErrEntryConflict          = errors.New("ledger_entry_conflict")
	ErrCancelled              = errors.New("cancelled")
	ErrInvalidStudent         = errors.New("invalid_student")
	ErrInvalidFeeDefinition   = errors.New("invalid_fee_definition")
	ErrEmptyBatch             = errors.New("empty_batch")
	ErrInvalidStatusFilter    = errors.New("invalid_status_filter")
	ErrInvalidDateRange       = errors.New("invalid_date_range")
	ErrInvalidView            = errors.New("invalid_view")
	ErrInvalidID              = errors.New("invalid_id")
	ErrNotFound               = errors.New("not_found")
)

// UpsertFailure is the per-item error of a payment batch. Other items of the
// same batch may already have been applied.
type UpsertFailure struct {
	FeeDefinitionID snowflake.ID
	Cause           error
}

func (e *UpsertFailure) Error() string {
	return fmt.Sprintf("upsert fee definition %s: %v", e.FeeDefinitionID, e.Cause)
}

func (e *UpsertFailure) Unwrap() error { return e.Cause }

// Reason returns the sentinel code of the cause, or "internal" for
// infrastructure errors.
func (e *UpsertFailure) Reason() string {
	for _, known := range []error{
		ErrInvalidAmount,
		ErrDiscountExceedsPayable,
		ErrAlreadySettled,
		ErrFeeInactive,
		ErrFeeDefinitionNotFound,
		ErrDuplicateSelection,
		ErrEntryConflict,
		ErrCancelled,
	} {
		if errors.Is(e.Cause, known) {
			return known.Error()
		}
	}
	return "internal"
}
