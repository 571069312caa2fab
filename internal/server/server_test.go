package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/feeledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/feeledger/internal/audit/service"
	"github.com/smallbiznis/feeledger/internal/clock"
	"github.com/smallbiznis/feeledger/internal/config"
	catalogdomain "github.com/smallbiznis/feeledger/internal/feecatalog/domain"
	catalogrepo "github.com/smallbiznis/feeledger/internal/feecatalog/repository"
	catalogservice "github.com/smallbiznis/feeledger/internal/feecatalog/service"
	feeledgerdomain "github.com/smallbiznis/feeledger/internal/feeledger/domain"
	ledgerrepo "github.com/smallbiznis/feeledger/internal/feeledger/repository"
	ledgerservice "github.com/smallbiznis/feeledger/internal/feeledger/service"
	"github.com/smallbiznis/feeledger/internal/observability"
	obsmetrics "github.com/smallbiznis/feeledger/internal/observability/metrics"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	waiverdomain "github.com/smallbiznis/feeledger/internal/waiver/domain"
	waiverrepo "github.com/smallbiznis/feeledger/internal/waiver/repository"
	waiverservice "github.com/smallbiznis/feeledger/internal/waiver/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	engine *gin.Engine
	node   *snowflake.Node
	class  snowflake.ID
	year   snowflake.ID
	fund   snowflake.ID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.FeeHead{},
		&catalogdomain.FeeDefinition{},
		&waiverdomain.WaiverRule{},
		&feeledgerdomain.LedgerEntry{},
		&feeledgerdomain.Tombstone{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))

	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Repo: auditrepo.Provide(), Clock: fakeClock})
	catalogSvc := catalogservice.New(catalogservice.Params{DB: db, Log: log, GenID: node, Repo: catalogrepo.Provide(), AuditSvc: auditSvc})
	waiverSvc := waiverservice.New(waiverservice.Params{DB: db, Log: log, GenID: node, Repo: waiverrepo.Provide(), AuditSvc: auditSvc})
	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Repo:       ledgerrepo.Provide(),
		CatalogSvc: catalogSvc,
		WaiverSvc:  waiverSvc,
		Policy:     config.NewStaticPolicyHolder(config.DefaultPolicy()),
		AuditSvc:   auditSvc,
		Clock:      fakeClock,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry(), obsmetrics.Config{ServiceName: "feeledger"})
	require.NoError(t, err)
	engine := NewEngine(observability.Config{Environment: "test"}, httpMetrics)

	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        config.Config{Environment: "test"},
		CatalogSvc: catalogSvc,
		WaiverSvc:  waiverSvc,
		LedgerSvc:  ledgerSvc,
		AuditSvc:   auditSvc,
	})

	return &testEnv{
		engine: engine,
		node:   node,
		class:  node.Generate(),
		year:   node.Generate(),
		fund:   node.Generate(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

// seedDefinition creates a head and a definition and returns the definition id.
func (e *testEnv) seedDefinition(t *testing.T, name, amount string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/fee-heads", gin.H{"name": name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var head catalogdomain.FeeHead
	decodeData(t, rec, &head)

	rec = e.do(t, http.MethodPost, "/api/fee-definitions", gin.H{
		"fee_head_id":      head.ID.String(),
		"student_class_id": e.class.String(),
		"academic_year_id": e.year.String(),
		"fund_id":          e.fund.String(),
		"amount":           amount,
		"due_date":         "2025-05-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var def catalogdomain.FeeDefinition
	decodeData(t, rec, &def)
	return def.ID.String()
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRouteReturnsNotFoundEnvelope(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestFeeHeadValidationAndConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/fee-heads", gin.H{"name": " "})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_name", payload.Errors[0].Code)
	assert.Equal(t, "name", payload.Errors[0].Field)

	rec = env.do(t, http.MethodPost, "/api/fee-heads", gin.H{"name": "Tuition"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/fee-heads", gin.H{"name": "Tuition"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetFeeDefinition(t *testing.T) {
	env := newTestEnv(t)
	defID := env.seedDefinition(t, "Tuition", "1500")

	rec := env.do(t, http.MethodGet, "/api/fee-definitions/"+defID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var def catalogdomain.FeeDefinition
	decodeData(t, rec, &def)
	assert.True(t, decimal.RequireFromString("1500").Equal(def.Amount))

	rec = env.do(t, http.MethodGet, "/api/fee-definitions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/fee-definitions/"+env.node.Generate().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentFlowThroughStatementAndReport(t *testing.T) {
	env := newTestEnv(t)
	tuition := env.seedDefinition(t, "Tuition", "1500")
	student := env.node.Generate().String()

	headsRec := env.do(t, http.MethodGet, "/api/fee-heads", nil)
	var heads []catalogdomain.FeeHead
	decodeData(t, headsRec, &heads)
	require.Len(t, heads, 1)

	rec := env.do(t, http.MethodPost, "/api/waiver-rules", gin.H{
		"student_id":       student,
		"academic_year_id": env.year.String(),
		"fee_head_ids":     []string{heads[0].ID.String()},
		"waiver_percent":   "20",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/students/"+student+"/payments", gin.H{
		"items": []gin.H{{"fee_definition_id": tuition, "amount": "500", "discount": "100"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch feeledgerdomain.SubmitPaymentsResponse
	decodeData(t, rec, &batch)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, 1, batch.Succeeded)
	assert.NotEmpty(t, batch.BatchID)
	assert.Equal(t, feeledgerdomain.StatusPartial, batch.Items[0].Status)
	require.NotNil(t, batch.Items[0].Due)
	assert.True(t, decimal.RequireFromString("600").Equal(*batch.Items[0].Due))

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/students/%s/statement?student_class_id=%s&academic_year_id=%s", student, env.class, env.year), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stmt feeledgerdomain.Statement
	decodeData(t, rec, &stmt)
	require.Len(t, stmt.Lines, 1)
	assert.True(t, decimal.RequireFromString("600").Equal(stmt.Totals.Due))
	assert.True(t, stmt.Lines[0].Overdue)

	rec = env.do(t, http.MethodGet, "/api/ledger-entries?view=due&student_id="+student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report struct {
		Data    []feeledgerdomain.ReportRow   `json:"data"`
		Summary feeledgerdomain.ReportSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Data, 1)
	assert.Equal(t, 1, report.Summary.OverdueCount)
	assert.True(t, decimal.RequireFromString("600").Equal(report.Summary.TotalDue))

	entryID := batch.Items[0].EntryID
	require.NotNil(t, entryID)
	rec = env.do(t, http.MethodGet, "/api/ledger-entries/"+entryID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/audit-logs?action=ledger_entry.create", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []auditdomain.AuditLog
	decodeData(t, rec, &logs)
	assert.Len(t, logs, 1)
}

func TestSubmitPaymentsReportsItemFailuresWithOK(t *testing.T) {
	env := newTestEnv(t)
	tuition := env.seedDefinition(t, "Tuition", "1000")
	student := env.node.Generate().String()

	rec := env.do(t, http.MethodPost, "/api/students/"+student+"/payments", gin.H{
		"items": []gin.H{
			{"fee_definition_id": tuition, "amount": "-5"},
			{"fee_definition_id": env.node.Generate().String(), "amount": "10"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var batch feeledgerdomain.SubmitPaymentsResponse
	decodeData(t, rec, &batch)
	assert.Equal(t, 2, batch.Failed)
	assert.Equal(t, "invalid_amount", batch.Items[0].Reason)
	assert.Equal(t, "fee_definition_not_found", batch.Items[1].Reason)
}

func TestSubmitPaymentsRejectsNonNumericAmounts(t *testing.T) {
	env := newTestEnv(t)
	tuition := env.seedDefinition(t, "Tuition", "1000")
	path := "/api/students/" + env.node.Generate().String() + "/payments"

	for name, fields := range map[string]gin.H{
		"amount":   {"amount": "ten"},
		"discount": {"amount": "10", "discount": true},
	} {
		item := gin.H{"fee_definition_id": tuition}
		for k, v := range fields {
			item[k] = v
		}
		rec := env.do(t, http.MethodPost, path, gin.H{"items": []gin.H{item}})
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
		payload := decodeError(t, rec)
		require.Len(t, payload.Errors, 1, name)
		assert.Equal(t, "invalid_amount", payload.Errors[0].Code, name)
	}

	rec := env.do(t, http.MethodPost, path, gin.H{"items": []gin.H{{"fee_definition_id": tuition, "amount": 25.5}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitPaymentsRejectsEmptyBatch(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/students/"+env.node.Generate().String()+"/payments", gin.H{"items": []gin.H{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "empty_batch", payload.Errors[0].Code)
	assert.Equal(t, "items", payload.Errors[0].Field)
}

func TestWithdrawFeesAndListTombstones(t *testing.T) {
	env := newTestEnv(t)
	tuition := env.seedDefinition(t, "Tuition", "1000")
	student := env.node.Generate().String()

	rec := env.do(t, http.MethodPost, "/api/students/"+student+"/tombstones", gin.H{
		"fee_definition_ids": []string{tuition},
		"reason":             "left boarding",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/students/"+student+"/tombstones", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tombstones []feeledgerdomain.Tombstone
	decodeData(t, rec, &tombstones)
	require.Len(t, tombstones, 1)
	assert.Equal(t, "left boarding", tombstones[0].Reason)

	rec = env.do(t, http.MethodPost, "/api/students/"+student+"/payments", gin.H{
		"items": []gin.H{{"fee_definition_id": tuition, "amount": "10"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var batch feeledgerdomain.SubmitPaymentsResponse
	decodeData(t, rec, &batch)
	assert.Equal(t, "fee_inactive", batch.Items[0].Reason)
}

func TestReportRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/ledger-entries?status=late", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/ledger-entries?from=2025-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/ledger-entries?from=2025-03&to=2025-01&granularity=month", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/ledger-entries?from=2025-01&to=2025-03&granularity=month", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteWaiverRule(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/waiver-rules", gin.H{
		"student_id":       env.node.Generate().String(),
		"academic_year_id": env.year.String(),
		"fee_head_ids":     []string{env.node.Generate().String()},
		"waiver_percent":   50,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule waiverdomain.WaiverRule
	decodeData(t, rec, &rule)

	rec = env.do(t, http.MethodDelete, "/api/waiver-rules/"+rule.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/waiver-rules/"+rule.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{err: feeledgerdomain.ErrAlreadySettled, status: http.StatusConflict, kind: "conflict"},
		{err: &feeledgerdomain.UpsertFailure{Cause: feeledgerdomain.ErrEntryConflict}, status: http.StatusConflict, kind: "conflict"},
		{err: feeledgerdomain.ErrDiscountExceedsPayable, status: http.StatusBadRequest, kind: "validation_error"},
		{err: feeledgerdomain.ErrNotFound, status: http.StatusNotFound, kind: "not_found"},
		{err: gorm.ErrRecordNotFound, status: http.StatusNotFound, kind: "not_found"},
		{err: ErrRateLimited, status: http.StatusTooManyRequests, kind: "rate_limited"},
		{err: ratelimit.ErrLockTimeout, status: http.StatusConflict, kind: "conflict"},
		{err: errors.New("boom"), status: http.StatusInternalServerError, kind: "internal_error"},
	}
	for _, tc := range cases {
		status, payload := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, payload.Type, tc.err.Error())
	}
}

func TestDenyPaymentRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.POST("/api/students/:id/payments", func(c *gin.Context) {
		denyPaymentRateLimit(c, &ratelimit.RateLimitResult{Limit: 10, RetryAfter: 2500 * time.Millisecond}, nil)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/students/1/payments", nil).WithContext(context.Background())
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestParseOptionalTimeMonth(t *testing.T) {
	start, err := parseOptionalTime("2025-02", false)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), *start)

	end, err := parseOptionalTime("2025-02", true)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC), *end)

	_, err = parseOptionalTime("Feb 2025", false)
	assert.Error(t, err)
}
