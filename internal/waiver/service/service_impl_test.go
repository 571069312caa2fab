package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	waiverrepo "github.com/smallbiznis/feeledger/internal/waiver/repository"
	waiverservice "github.com/smallbiznis/feeledger/internal/waiver/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupWaiver(t *testing.T) (waiverdomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:waiver_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&waiverdomain.WaiverRule{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	svc := waiverservice.New(waiverservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  waiverrepo.Provide(),
	})
	return svc, node
}

func TestCreateRuleRoundTrip(t *testing.T) {
	svc, node := setupWaiver(t)
	ctx := context.Background()

	student := node.Generate()
	year := node.Generate()
	tuition := node.Generate()
	boarding := node.Generate()

	rule, err := svc.CreateRule(ctx, waiverdomain.CreateRuleRequest{
		StudentID:      student,
		AcademicYearID: year,
		FeeHeadIDs:     []snowflake.ID{tuition, boarding, tuition, 0},
		WaiverPercent:  decimal.RequireFromString("20"),
		Note:           "  sibling  ",
	})
	require.NoError(t, err)
	assert.Len(t, rule.FeeHeadIDs, 2)
	assert.Equal(t, "sibling", rule.Note)

	rules, err := svc.ListRules(ctx, waiverdomain.ListRulesRequest{StudentID: student, AcademicYearID: year})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].CoversHead(tuition))
	assert.True(t, rules[0].CoversHead(boarding))
	assert.False(t, rules[0].CoversHead(node.Generate()))
	assert.True(t, rules[0].WaiverPercent.Equal(decimal.NewFromInt(20)))
}

func TestListRulesKeepsCreationOrder(t *testing.T) {
	svc, node := setupWaiver(t)
	ctx := context.Background()

	student := node.Generate()
	year := node.Generate()
	head := node.Generate()

	var ids []snowflake.ID
	for _, pct := range []string{"10", "50", "25"} {
		rule, err := svc.CreateRule(ctx, waiverdomain.CreateRuleRequest{
			StudentID:      student,
			AcademicYearID: year,
			FeeHeadIDs:     []snowflake.ID{head},
			WaiverPercent:  decimal.RequireFromString(pct),
		})
		require.NoError(t, err)
		ids = append(ids, rule.ID)
	}

	rules, err := svc.ListRules(ctx, waiverdomain.ListRulesRequest{StudentID: student})
	require.NoError(t, err)
	require.Len(t, rules, 3)
	for i, rule := range rules {
		assert.Equal(t, ids[i], rule.ID)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	svc, node := setupWaiver(t)
	ctx := context.Background()
	student := node.Generate()
	year := node.Generate()
	head := node.Generate()

	cases := []struct {
		name string
		req  waiverdomain.CreateRuleRequest
		want error
	}{
		{"missing student", waiverdomain.CreateRuleRequest{AcademicYearID: year, FeeHeadIDs: []snowflake.ID{head}}, waiverdomain.ErrInvalidStudent},
		{"missing year", waiverdomain.CreateRuleRequest{StudentID: student, FeeHeadIDs: []snowflake.ID{head}}, waiverdomain.ErrInvalidAcademicYear},
		{"no heads", waiverdomain.CreateRuleRequest{StudentID: student, AcademicYearID: year, FeeHeadIDs: []snowflake.ID{0}}, waiverdomain.ErrInvalidFeeHeads},
		{"negative percent", waiverdomain.CreateRuleRequest{StudentID: student, AcademicYearID: year, FeeHeadIDs: []snowflake.ID{head}, WaiverPercent: decimal.NewFromInt(-1)}, waiverdomain.ErrInvalidPercent},
		{"over hundred", waiverdomain.CreateRuleRequest{StudentID: student, AcademicYearID: year, FeeHeadIDs: []snowflake.ID{head}, WaiverPercent: decimal.RequireFromString("100.01")}, waiverdomain.ErrInvalidPercent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRule(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDeleteRule(t *testing.T) {
	svc, node := setupWaiver(t)
	ctx := context.Background()
	student := node.Generate()

	rule, err := svc.CreateRule(ctx, waiverdomain.CreateRuleRequest{
		StudentID:      student,
		AcademicYearID: node.Generate(),
		FeeHeadIDs:     []snowflake.ID{node.Generate()},
		WaiverPercent:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRule(ctx, rule.ID))
	assert.ErrorIs(t, svc.DeleteRule(ctx, rule.ID), waiverdomain.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteRule(ctx, 0), waiverdomain.ErrInvalidID)

	rules, err := svc.ListRules(ctx, waiverdomain.ListRulesRequest{StudentID: student})
	require.NoError(t, err)
	assert.Empty(t, rules)
}
