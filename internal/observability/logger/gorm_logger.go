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

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LockWaitThreshold applies to SELECT ... FOR UPDATE statements, which
	// queue behind other membership transactions on the same organization.
	LockWaitThreshold time.Duration
	// ExpectedError marks errors that are normal outcomes of a guarded
	// write, such as a unique or CHECK violation. They are logged at debug.
	ExpectedError func(error) bool
}

// DefaultGormLoggerConfig returns production-safe defaults. Missing rows are
// an expected lookup outcome and are not logged.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:             gormlogger.Warn,
		SlowThreshold:     200 * time.Millisecond,
		LockWaitThreshold: 50 * time.Millisecond,
	}
}

// GormLogger implements gormlogger.Interface with zap-backed structured logging.
type GormLogger struct {
	level             gormlogger.LogLevel
	slowThreshold     time.Duration
	lockWaitThreshold time.Duration
	expectedError     func(error) bool
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{
		level:             cfg.Level,
		slowThreshold:     cfg.SlowThreshold,
		lockWaitThreshold: cfg.LockWaitThreshold,
		expectedError:     cfg.ExpectedError,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Info {
		return
	}
	FromContext(ctx).Info(msg, messageFields(data)...)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Warn {
		return
	}
	FromContext(ctx).Warn(msg, messageFields(data)...)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level < gormlogger.Error {
		return
	}
	FromContext(ctx).Error(msg, messageFields(data)...)
}

func messageFields(data []interface{}) []zap.Field {
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	return fields
}

// Trace logs one statement. Failures log at error unless they are expected
// outcomes; slow statements and long row-lock waits log at warn.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	stmt := describeStatement(sql)

	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		return
	case err != nil && l.expectedError != nil && l.expectedError(err):
		l.logQuery(ctx, "gorm.constraint", stmt, rows, elapsed, err, zap.DebugLevel)
	case err != nil && l.level >= gormlogger.Error:
		l.logQuery(ctx, "gorm.query", stmt, rows, elapsed, err, zap.ErrorLevel)
	case stmt.rowLock && l.lockWaitThreshold != 0 && elapsed > l.lockWaitThreshold && l.level >= gormlogger.Warn:
		l.logQuery(ctx, "gorm.lock_wait", stmt, rows, elapsed, nil, zap.WarnLevel)
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.logQuery(ctx, "gorm.slow_query", stmt, rows, elapsed, nil, zap.WarnLevel)
	case l.level >= gormlogger.Info:
		l.logQuery(ctx, "gorm.query", stmt, rows, elapsed, nil, zap.DebugLevel)
	}
}

// ParamsFilter strips bound values; they carry email addresses and tokens.
func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) logQuery(ctx context.Context, msg string, stmt statement, rows int64, elapsed time.Duration, err error, level zapcore.Level) {
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", stmt.sql),
		zap.String("operation", stmt.operation),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if stmt.table != "" {
		fields = append(fields, zap.String("table", stmt.table))
	}
	if stmt.rowLock {
		fields = append(fields, zap.Bool("row_lock", true))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}

	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

type statement struct {
	sql       string
	operation string
	table     string
	rowLock   bool
}

func describeStatement(sql string) statement {
	trimmed := strings.TrimSpace(sql)
	stmt := statement{sql: trimmed, operation: "UNKNOWN"}

	tokens := strings.Fields(strings.ToUpper(trimmed))
	raw := strings.Fields(trimmed)
	for i, token := range tokens {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE":
			if stmt.operation == "UNKNOWN" {
				stmt.operation = token
			}
			if token == "UPDATE" && stmt.table == "" && i+1 < len(raw) {
				stmt.table = tableName(raw[i+1])
			}
		case "FROM", "INTO":
			if stmt.table == "" && i+1 < len(raw) {
				stmt.table = tableName(raw[i+1])
			}
		case "FOR":
			if i+1 < len(tokens) && tokens[i+1] == "UPDATE" {
				stmt.rowLock = true
			}
		}
	}
	return stmt
}

func tableName(token string) string {
	return strings.Trim(token, "\"`();,")
}

var _ gormlogger.Interface = (*GormLogger)(nil)
