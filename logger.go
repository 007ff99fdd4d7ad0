package aocs

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with table-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return newWriterLogger(os.Stderr, "json", level)
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return newWriterLogger(os.Stderr, "text", level)
}

func newWriterLogger(w io.Writer, format string, level slog.Level) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return NewLogger(slog.NewJSONHandler(w, opts))
	}
	return NewLogger(slog.NewTextHandler(w, opts))
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithTable adds the table name to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// WithTxn adds a transaction id field to the logger.
func (l *Logger) WithTxn(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("txn", id),
	}
}

// LogInsert logs an insert statement.
func (l *Logger) LogInsert(ctx context.Context, segno int32, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"segno", segno,
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "insert completed",
			"segno", segno,
			"rows", rows,
		)
	}
}

// LogFetch logs a fetch by row id.
func (l *Logger) LogFetch(ctx context.Context, id RowID, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fetch failed",
			"row", id.String(),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "fetch completed",
			"row", id.String(),
			"found", found,
		)
	}
}

// LogDelete logs a delete statement.
func (l *Logger) LogDelete(ctx context.Context, rows int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"rows", rows,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"rows", rows,
		)
	}
}

// LogCommit logs the end of a transaction.
func (l *Logger) LogCommit(ctx context.Context, statements int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"statements", statements,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "commit completed",
			"statements", statements,
		)
	}
}

// LogRewrite logs a schema change.
func (l *Logger) LogRewrite(ctx context.Context, op string, columns int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "column rewrite failed",
			"op", op,
			"columns", columns,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "column rewrite completed",
			"op", op,
			"columns", columns,
		)
	}
}

// LogVerify logs a verification run.
func (l *Logger) LogVerify(ctx context.Context, report VerifyReport, err error) {
	if err != nil {
		l.ErrorContext(ctx, "verify failed",
			"segments", report.Segments,
			"blocks", report.Blocks,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "verify completed",
			"segments", report.Segments,
			"blocks", report.Blocks,
			"rows", report.Rows,
		)
	}
}
