package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM ledger_entries":                          "SELECT",
		"  insert into ledger_entries (id) values (1)":          "INSERT",
		"WITH due AS (SELECT 1) UPDATE ledger_entries SET id=1": "UPDATE",
		"with a as (select 1), b as (select (2)) delete from x": "DELETE",
		"SELECT(1)": "SELECT",
		"":          "UNKNOWN",
		"VACUUM":    "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}

func TestGormLoggerFlagsSlowQueries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond})
	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) {
		return "SELECT * FROM ledger_entries", 3
	}, nil)

	entries := logs.FilterMessage("gorm.query").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, true, entries[0].ContextMap()["slow"])
	}
}

func TestGormLoggerParamsFilter(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	_, params := l.ParamsFilter(context.Background(), "SELECT ?", 1)
	assert.Nil(t, params)

	verbose := l.LogMode(gormlogger.Info).(*GormLogger)
	_, params = verbose.ParamsFilter(context.Background(), "SELECT ?", 1)
	assert.Equal(t, []interface{}{1}, params)
}
