package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/reits-ledger/internal/model"
)

// Schema creates the ledger_records table.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_records (
	kind       TEXT        NOT NULL,
	key        BYTEA       NOT NULL,
	value      JSONB       NOT NULL,
	version    BIGINT      NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, key)
)`

// serializationFailure is the SQLSTATE for a serialization failure.
const serializationFailure = "40001"

// Postgres is a Store backed by the ledger_records table.
type Postgres struct {
	pool   *pgxpool.Pool
	locks  *KeyLock
	logger *slog.Logger
}

// NewPostgres wraps a connection pool. The schema must already exist
// (see database.Migrate).
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		pool:   pool,
		locks:  NewKeyLock(),
		logger: logger,
	}
}

// Update implements Store. Rows read inside fn are locked FOR UPDATE so
// other processes sharing the database serialize as well.
func (s *Postgres) Update(ctx context.Context, keys []model.Address, fn func(Tx) error) error {
	unlock := s.locks.Lock(keys)
	defer unlock()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx, forUpdate: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// View implements Store.
func (s *Postgres) View(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	return fn(&pgTx{ctx: ctx, tx: tx})
}

// Close implements Store. The pool is owned by the caller.
func (s *Postgres) Close() error {
	return nil
}

// pgTx adapts a pgx transaction to Tx.
type pgTx struct {
	ctx       context.Context
	tx        pgx.Tx
	forUpdate bool
}

func (t *pgTx) Get(kind Kind, key model.Address, v any) error {
	query := `SELECT value FROM ledger_records WHERE kind = $1 AND key = $2`
	if t.forUpdate {
		query += ` FOR UPDATE`
	}

	var data []byte
	err := t.tx.QueryRow(t.ctx, query, string(kind), key[:]).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, key)
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	return decode(kind, key, data, v)
}

func (t *pgTx) Create(kind Kind, key model.Address, v any) error {
	data, err := encode(kind, key, v)
	if err != nil {
		return err
	}

	ct, err := t.tx.Exec(t.ctx, `
		INSERT INTO ledger_records (kind, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, key) DO NOTHING
	`, string(kind), key[:], string(data))
	if err != nil {
		return fmt.Errorf("create %s %s: %w", kind, key, err)
	}
	if ct.RowsAffected() == 0 {
		return exists(kind, key)
	}
	return nil
}

func (t *pgTx) Put(kind Kind, key model.Address, v any) error {
	data, err := encode(kind, key, v)
	if err != nil {
		return err
	}

	ct, err := t.tx.Exec(t.ctx, `
		UPDATE ledger_records
		SET value = $3, version = version + 1, updated_at = now()
		WHERE kind = $1 AND key = $2
	`, string(kind), key[:], string(data))
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, key, err)
	}
	if ct.RowsAffected() == 0 {
		return notFound(kind, key)
	}
	return nil
}

func (t *pgTx) Scan(kind Kind, fn func(key model.Address, data []byte) error) error {
	rows, err := t.tx.Query(t.ctx,
		`SELECT key, value FROM ledger_records WHERE kind = $1 ORDER BY key`,
		string(kind),
	)
	if err != nil {
		return fmt.Errorf("scan %s: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rawKey, data []byte
		if err := rows.Scan(&rawKey, &data); err != nil {
			return fmt.Errorf("scan %s row: %w", kind, err)
		}
		var key model.Address
		copy(key[:], rawKey)
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
