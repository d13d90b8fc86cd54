package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQuery is the duration above which a statement is logged at warn.
const DefaultSlowQuery = 200 * time.Millisecond

// QueryLogger sends gorm's statement log through the request-scoped zap logger, so every
// query line carries the request, tenant and actor of the call that issued it.
//
// Failed statements log at error, slow ones at warn and, in debug mode, the rest at debug.
// Missing rows are how the repositories signal "not found" and are never logged. Bound
// values are dropped: contact details and amounts stay out of the log.
type QueryLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewQueryLogger(debug bool, slow time.Duration) *QueryLogger {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &QueryLogger{level: level, slow: slow}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < min {
		return
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(zap.String("component", "gorm"), zap.Any("data", data))
	}
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	var level zapcore.Level
	switch {
	case l.level <= gormlogger.Silent:
		return
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		level = zapcore.ErrorLevel
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		level = zapcore.WarnLevel
	case l.level >= gormlogger.Info:
		level = zapcore.DebugLevel
	default:
		return
	}

	ce := FromContext(ctx).Check(level, "gorm.query")
	if ce == nil {
		return
	}
	sql, rows := fc()
	operation, table := statementOf(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operation),
		zap.String("table", table),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if level == zapcore.ErrorLevel {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// ParamsFilter drops bound values from the SQL gorm hands to Trace.
func (l *QueryLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

// statementOf returns the first verb and the first table named after FROM, INTO or UPDATE.
func statementOf(sql string) (operation, table string) {
	tokens := strings.Fields(sql)
	for i, token := range tokens {
		word := strings.ToUpper(strings.Trim(token, "();"))
		switch word {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if operation == "" {
				operation = word
			}
		}
		switch word {
		case "FROM", "INTO", "UPDATE":
			if table == "" && i+1 < len(tokens) {
				table = strings.Trim(tokens[i+1], "`\"();")
			}
		}
	}
	if operation == "" {
		operation = "UNKNOWN"
	}
	return operation, table
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
