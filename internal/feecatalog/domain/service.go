package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateFeeHeadRequest struct {
	Name string
	Code string
}

type CreateFeeDefinitionRequest struct {
	FeeHeadID      snowflake.ID
	StudentClassID snowflake.ID
	AcademicYearID snowflake.ID
	FundID         snowflake.ID
	Amount         decimal.Decimal
	IsBoarding     bool
	DueDate        *time.Time
}

type ListFeeDefinitionRequest struct {
	StudentClassID snowflake.ID
	AcademicYearID snowflake.ID
	FeeHeadID      snowflake.ID
	Boarding       *bool
}

type Service interface {
	CreateFeeHead(ctx context.Context, req CreateFeeHeadRequest) (FeeHead, error)
	ListFeeHeads(ctx context.Context) ([]FeeHead, error)
	CreateFeeDefinition(ctx context.Context, req CreateFeeDefinitionRequest) (FeeDefinition, error)
	GetFeeDefinition(ctx context.Context, id snowflake.ID) (FeeDefinition, error)
	ListFeeDefinitions(ctx context.Context, req ListFeeDefinitionRequest) ([]FeeDefinition, error)
	FindFeeDefinitions(ctx context.Context, ids []snowflake.ID) ([]FeeDefinition, error)
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidCode         = errors.New("invalid_code")
	ErrInvalidFeeHead      = errors.New("invalid_fee_head")
	ErrInvalidStudentClass = errors.New("invalid_student_class")
	ErrInvalidAcademicYear = errors.New("invalid_academic_year")
	ErrInvalidFund         = errors.New("invalid_fund")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidID           = errors.New("invalid_id")
	ErrFeeHeadExists       = errors.New("fee_head_exists")
	ErrNotFound            = errors.New("not_found")
)
