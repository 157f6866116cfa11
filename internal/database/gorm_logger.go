package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold marks queries worth a warning. DDL and index builds
// routinely cross it, so those land at warn level too.
const slowQueryThreshold = 2 * time.Second

// maxSQLLength is the maximum length of a SQL string in logs before it gets
// truncated with an ellipsis.
const maxSQLLength = 240

// gormLogger adapts slog to GORM's logger.Interface. Successful statements go
// to debug, slow ones to warn, failures to error.
type gormLogger struct {
	logger *slog.Logger
}

func newGormLogger(l *slog.Logger) gormLogger {
	if l == nil {
		l = slog.Default()
	}
	return gormLogger{logger: l.With("component", "sql")}
}

// LogMode is a no-op; level filtering is handled by slog.
func (l gormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

// Info logs informational messages from GORM.
func (l gormLogger) Info(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

// Warn logs warning messages from GORM.
func (l gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

// Error logs error messages from GORM.
func (l gormLogger) Error(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

// TruncateSQL shortens long statements for logs and error messages.
func TruncateSQL(sql string) string {
	if len(sql) <= maxSQLLength {
		return sql
	}
	half := (maxSQLLength - 3) / 2
	return sql[:half] + "..." + sql[len(sql)-half:]
}

// Trace is called by GORM after every SQL operation. ErrRecordNotFound is the
// normal result of First() and is not logged as an error.
func (l gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger.ErrorContext(ctx, "query failed",
			slog.String("sql", TruncateSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
	case elapsed > slowQueryThreshold:
		sql, rows := fc()
		l.logger.WarnContext(ctx, "slow query",
			slog.String("sql", TruncateSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("duration", elapsed),
		)
	case l.logger.Enabled(ctx, slog.LevelDebug):
		sql, rows := fc()
		l.logger.DebugContext(ctx, "query",
			slog.String("sql", TruncateSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("duration", elapsed),
		)
	}
}
