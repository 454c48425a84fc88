package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect is the SQL flavour behind a DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is an open journal database.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
	pool    *pgxpool.Pool
}

// DialectFor picks the dialect from the DSN scheme. postgres:// and
// postgresql:// use pgx; anything else is treated as a SQLite path or URI.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the DSN and makes sure the journal table exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	dialect := DialectFor(cfg.DSN)
	logger.Info("connecting to journal database", "dialect", dialect)

	var db *DB
	var err error
	switch dialect {
	case DialectPostgres:
		db, err = openPostgres(ctx, cfg)
	default:
		db, err = openSQLite(cfg)
	}
	if err != nil {
		logger.Error("failed to connect to journal database", "error", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := migrate(ctx, db); err != nil {
		Close(db, logger)
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	logger.Info("journal database ready", "dialect", dialect)
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docflow"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	return &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: DialectPostgres, pool: pool}, nil
}

func openSQLite(cfg Config) (*DB, error) {
	path := strings.TrimPrefix(cfg.DSN, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")
	if path == "" {
		path = ":memory:"
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection: an in-memory database is private to its connection
	sqlDB.SetMaxOpenConns(1)
	return &DB{SQL: sqlDB, Dialect: DialectSQLite}, nil
}

// Close closes the database connections gracefully.
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing journal database")
	if err := db.SQL.Close(); err != nil {
		logger.Error("failed to close journal database", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Debug("pinging journal database")
	if err := db.SQL.PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("journal database ping successful")
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func migrate(ctx context.Context, db *DB) error {
	idCol := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.Dialect == DialectPostgres {
		idCol = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_edits (
			id ` + idCol + `,
			session_id TEXT NOT NULL,
			file_key TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			recorded_at BIGINT NOT NULL,
			confirmed_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS pending_edits_open_idx
			ON pending_edits (session_id, file_key, field, confirmed_at)`,
	}
	for _, s := range stmts {
		if _, err := db.SQL.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
