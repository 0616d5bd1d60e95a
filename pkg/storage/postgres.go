package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielgvb/betting-app/pkg/ledger"
)

// PoolConfig holds Postgres connection configuration.
type PoolConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	PoolSize int
	SSLMode  string // disable, require, verify-ca, verify-full
}

// ConnectionString returns a PostgreSQL connection string.
func (c PoolConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// NewPool creates a connection pool with the given configuration.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	seq     BIGSERIAL PRIMARY KEY,
	kind    SMALLINT NOT NULL,
	payload JSONB    NOT NULL
)`

// PostgresLedger is an append-only ledger in a Postgres table. Each
// Commit runs in one transaction, so a submission's records land
// together or not at all; BIGSERIAL keeps insertion order.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger bootstraps the ledger table and returns a ledger
// over the given pool. The pool stays owned by the caller's process
// lifetime; Close closes it.
func NewPostgresLedger(ctx context.Context, pool *pgxpool.Pool) (*PostgresLedger, error) {
	if _, err := pool.Exec(ctx, ledgerSchema); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

func (l *PostgresLedger) Commit(ctx context.Context, recs []ledger.Record) error {
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range recs {
		payload, err := encodeRecord(r)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_records (kind, payload) VALUES ($1, $2)`,
			int16(r.Kind), payload,
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Replay(ctx context.Context, fn func(ledger.Record) error) error {
	rows, err := l.pool.Query(ctx,
		`SELECT seq, payload FROM ledger_records ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("replay query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var payload []byte
		if err := rows.Scan(&seq, &payload); err != nil {
			return fmt.Errorf("replay scan: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return fmt.Errorf("replay decode seq %d: %w", seq, err)
		}
		rec.Seq = uint64(seq)
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("replay rows: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	l.pool.Close()
	return nil
}

var _ ledger.Ledger = (*PostgresLedger)(nil)
