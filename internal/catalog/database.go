// Package catalog is the local SQLite mirror of the program/service
// catalog and the recording history ledger: a fallback read path for
// the HTTP surface when the upstream tuner is unreachable, and a table
// for durable records of completed recordings.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB wraps a GORM connection to the catalog's SQLite database.
type DB struct {
	*gorm.DB
	logger *slog.Logger
}

const (
	defaultMaxOpenConns = 6
	defaultMaxIdleConns = 3
)

// Config configures the catalog database.
type Config struct {
	// DSN is the SQLite file path, e.g. "catalog.db".
	DSN      string
	LogLevel string

	// MaxOpenConns and MaxIdleConns size the underlying connection pool.
	// Zero means use the package defaults.
	MaxOpenConns int
	MaxIdleConns int
}

// Open opens (creating if absent) the catalog SQLite database and runs
// AutoMigrate against its models.
func Open(cfg Config, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}

	dsn := cfg.DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(ON)"

	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 newGormLogger(cfg.LogLevel, log),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = defaultMaxOpenConns
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)

	if err := gormDB.AutoMigrate(&RecordingHistoryEntry{}, &ProgramMirror{}, &ServiceMirror{}); err != nil {
		return nil, fmt.Errorf("migrating catalog database: %w", err)
	}

	return &DB{DB: gormDB, logger: log}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func newGormLogger(level string, log *slog.Logger) *slogGormLogger {
	return &slogGormLogger{logger: log, level: gormLogLevel(level)}
}

// slogGormLogger adapts GORM's logger.Interface to slog, the same way
// the rest of this codebase routes every subsystem's logging.
type slogGormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func (l *slogGormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &slogGormLogger{logger: l.logger, level: level}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

const slowQueryThreshold = time.Second

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sqlStr, rows := fc()

	switch {
	case err != nil && l.level >= logger.Error && !isRecordNotFound(err):
		l.logger.ErrorContext(ctx, "catalog database error",
			slog.String("sql", sqlStr), slog.Int64("rows", rows), slog.Any("error", err))
	case elapsed > slowQueryThreshold && l.level >= logger.Warn:
		l.logger.WarnContext(ctx, "slow catalog query",
			slog.String("sql", sqlStr), slog.Duration("elapsed", elapsed))
	case l.level >= logger.Info:
		l.logger.DebugContext(ctx, "catalog query",
			slog.String("sql", sqlStr), slog.Int64("rows", rows), slog.Duration("elapsed", elapsed))
	}
}

func isRecordNotFound(err error) bool {
	return err == sql.ErrNoRows || err.Error() == "record not found"
}
