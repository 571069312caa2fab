package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	"github.com/smallbiznis/feeledger/internal/feecatalog/repository"
	"github.com/smallbiznis/feeledger/internal/feecatalog/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalog(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:catalog_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.FeeHead{}, &domain.FeeDefinition{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	}), node
}

func TestCreateFeeHeadSlugsCode(t *testing.T) {
	svc, _ := setupCatalog(t)
	ctx := context.Background()

	head, err := svc.CreateFeeHead(ctx, domain.CreateFeeHeadRequest{Name: "Boarding Fee"})
	require.NoError(t, err)
	assert.Equal(t, "boarding-fee", head.Code)

	_, err = svc.CreateFeeHead(ctx, domain.CreateFeeHeadRequest{Name: "Other", Code: "Boarding  FEE"})
	assert.ErrorIs(t, err, domain.ErrFeeHeadExists)

	_, err = svc.CreateFeeHead(ctx, domain.CreateFeeHeadRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	heads, err := svc.ListFeeHeads(ctx)
	require.NoError(t, err)
	assert.Len(t, heads, 1)
}

func TestCreateFeeDefinitionJoinsHead(t *testing.T) {
	svc, node := setupCatalog(t)
	ctx := context.Background()

	head, err := svc.CreateFeeHead(ctx, domain.CreateFeeHeadRequest{Name: "Tuition"})
	require.NoError(t, err)

	class := node.Generate()
	year := node.Generate()
	due := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	def, err := svc.CreateFeeDefinition(ctx, domain.CreateFeeDefinitionRequest{
		FeeHeadID:      head.ID,
		StudentClassID: class,
		AcademicYearID: year,
		FundID:         node.Generate(),
		Amount:         decimal.RequireFromString("1500.005"),
		DueDate:        &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "1500.01", def.Amount.StringFixed(2))

	got, err := svc.GetFeeDefinition(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "tuition", got.FeeHeadCode)
	assert.Equal(t, "Tuition", got.FeeHeadName)
	assert.True(t, got.Amount.Equal(def.Amount))

	listed, err := svc.ListFeeDefinitions(ctx, domain.ListFeeDefinitionRequest{StudentClassID: class, AcademicYearID: year})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	boarding := true
	listed, err = svc.ListFeeDefinitions(ctx, domain.ListFeeDefinitionRequest{StudentClassID: class, Boarding: &boarding})
	require.NoError(t, err)
	assert.Empty(t, listed)

	found, err := svc.FindFeeDefinitions(ctx, []snowflake.ID{def.ID, def.ID, node.Generate()})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestCreateFeeDefinitionValidation(t *testing.T) {
	svc, node := setupCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateFeeDefinition(ctx, domain.CreateFeeDefinitionRequest{
		FeeHeadID:      node.Generate(),
		StudentClassID: node.Generate(),
		AcademicYearID: node.Generate(),
		FundID:         node.Generate(),
		Amount:         decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidFeeHead)

	_, err = svc.CreateFeeDefinition(ctx, domain.CreateFeeDefinitionRequest{
		FeeHeadID:      node.Generate(),
		StudentClassID: node.Generate(),
		AcademicYearID: node.Generate(),
		FundID:         node.Generate(),
		Amount:         decimal.NewFromInt(-10),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.GetFeeDefinition(ctx, node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
