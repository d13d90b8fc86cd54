package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	obscontext "github.com/smallbiznis/fieldbooks/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = orgcontext.WithOrgID(ctx, snowflake.ID(9))
	ctx = orgcontext.WithActor(ctx, orgcontext.Actor{ID: "u-1", Role: "office"})

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "9", fields["org_id"])
	assert.Equal(t, "u-1", fields["actor_id"])
	assert.Equal(t, "office", fields["actor_role"])
	assert.NotContains(t, fields, "vendor_id")
}

func TestWithContextAddsVendorScope(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	vendorID := snowflake.ID(42)
	ctx := orgcontext.WithActor(context.Background(), orgcontext.Actor{ID: "portal-1", Role: "vendor", VendorID: &vendorID})

	WithContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "42", logs.All()[0].ContextMap()["vendor_id"])
}

func TestGinMiddlewareWarnsOnSyncWarnings(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/api/v1/invoices", func(c *gin.Context) {
		c.Set("sync_warnings", 1)
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/invoices", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.EqualValues(t, 1, entry.ContextMap()["sync_warnings"])
}

func TestGinMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "internal_error", err.Error() },
	}))
	r.GET("/boom", func(c *gin.Context) {
		assert.NotEmpty(t, obscontext.RequestIDFromContext(c.Request.Context()))
		_ = c.Error(errors.New("kaput"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-Id"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "kaput", entry.ContextMap()["error_code"])
}

func TestStatementOf(t *testing.T) {
	op, table := statementOf(`UPDATE "job_orders" SET invoiced_amount = 1`)
	assert.Equal(t, "UPDATE", op)
	assert.Equal(t, "job_orders", table)

	op, table = statementOf("SELECT * FROM `invoices` WHERE id = 1 FOR UPDATE")
	assert.Equal(t, "SELECT", op)
	assert.Equal(t, "invoices", table)

	op, table = statementOf("BEGIN")
	assert.Equal(t, "UNKNOWN", op)
	assert.Equal(t, "", table)
}

func TestQueryLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	ctx := orgcontext.WithOrgID(context.Background(), snowflake.ID(3))
	query := func() (string, int64) { return `INSERT INTO "time_entries" ("id") VALUES ($1)`, 1 }
	now := time.Now()

	quiet := NewQueryLogger(false, time.Second)
	quiet.Trace(ctx, now, query, nil)
	quiet.Trace(ctx, now, query, gormlogger.ErrRecordNotFound)
	quiet.Info(ctx, "migrating")
	assert.Equal(t, 0, logs.Len())

	quiet.Trace(ctx, now.Add(-2*time.Second), query, nil)
	quiet.Trace(ctx, now, query, errors.New("duplicate key"))
	require.Equal(t, 2, logs.Len())
	slow, failed := logs.All()[0], logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, slow.Level)
	assert.Equal(t, "time_entries", slow.ContextMap()["table"])
	assert.Equal(t, "INSERT", slow.ContextMap()["operation"])
	assert.Equal(t, "3", slow.ContextMap()["org_id"])
	assert.Equal(t, zapcore.ErrorLevel, failed.Level)
	assert.Equal(t, "duplicate key", failed.ContextMap()["error"])

	NewQueryLogger(true, time.Second).Trace(ctx, now, query, nil)
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[2].Level)

	quiet.LogMode(gormlogger.Silent).Trace(ctx, now, query, errors.New("boom"))
	assert.Equal(t, 3, logs.Len())

	sql, params := quiet.ParamsFilter(ctx, "SELECT 1 WHERE email = ?", "owner@example.com")
	assert.Equal(t, "SELECT 1 WHERE email = ?", sql)
	assert.Nil(t, params)
}
