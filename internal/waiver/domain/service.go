package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateRuleRequest struct {
	StudentID      snowflake.ID
	AcademicYearID snowflake.ID
	FeeHeadIDs     []snowflake.ID
	WaiverPercent  decimal.Decimal
	Note           string
}

type ListRulesRequest struct {
	StudentID      snowflake.ID
	AcademicYearID snowflake.ID
}

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (WaiverRule, error)
	ListRules(ctx context.Context, req ListRulesRequest) ([]WaiverRule, error)
	DeleteRule(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidStudent      = errors.New("invalid_student")
	ErrInvalidAcademicYear = errors.New("invalid_academic_year")
	ErrInvalidFeeHeads     = errors.New("invalid_fee_heads")
	ErrInvalidPercent      = errors.New("invalid_waiver_percent")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
)
