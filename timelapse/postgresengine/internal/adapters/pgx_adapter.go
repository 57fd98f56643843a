package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXAdapter implements DBAdapter and Copier for pgxpool.Pool.
type PGXAdapter struct {
	pool        *pgxpool.Pool
	replicaPool *pgxpool.Pool // optional replica for read operations
}

// NewPGXAdapter creates a new PGX adapter with a primary pool.
func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

// NewPGXAdapterWithReplica creates a new PGX adapter with a primary pool and a replica pool.
func NewPGXAdapterWithReplica(pool *pgxpool.Pool, replica *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool, replicaPool: replica}
}

func (p *PGXAdapter) readPool() *pgxpool.Pool {
	if p.replicaPool != nil {
		return p.replicaPool
	}

	return p.pool
}

// Query executes a query using the replica pool if available, otherwise the primary pool.
func (p *PGXAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := p.readPool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxRows{rows: rows}, nil
}

// Exec executes a query using the pgx pool and returns wrapped result.
func (p *PGXAdapter) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxResult{tag: tag}, nil
}

// Begin starts a transaction. Read-only transactions use the replica pool if available.
func (p *PGXAdapter) Begin(ctx context.Context, readOnly bool) (DBTx, error) {
	pool, options := p.pool, pgx.TxOptions{}

	if readOnly {
		pool, options.AccessMode = p.readPool(), pgx.ReadOnly
	}

	tx, err := pool.BeginTx(ctx, options)
	if err != nil {
		return nil, err
	}

	return &pgxTx{tx: tx}, nil
}

// CopyFrom bulk loads rows with the COPY protocol. A dotted table name is treated as schema.table.
func (p *PGXAdapter) CopyFrom(
	ctx context.Context,
	table string,
	columns []string,
	next func() ([]any, error),
) (int64, error) {
	return p.pool.CopyFrom(ctx, pgx.Identifier(strings.Split(table, ".")), columns, pgx.CopyFromFunc(next))
}

// pgxRows wraps pgx.Rows to implement the DBRows interface.
type pgxRows struct {
	rows pgx.Rows
}

func (p *pgxRows) Next() bool {
	return p.rows.Next()
}

func (p *pgxRows) Scan(dest ...any) error {
	return p.rows.Scan(dest...)
}

func (p *pgxRows) Err() error {
	return p.rows.Err()
}

// Close closes the rows iterator.
func (p *pgxRows) Close() error {
	p.rows.Close()
	return nil
}

// pgxResult wraps pgconn.CommandTag to implement the DBResult interface.
type pgxResult struct {
	tag pgconn.CommandTag
}

// RowsAffected returns the number of rows affected by the command.
func (p *pgxResult) RowsAffected() (int64, error) {
	return p.tag.RowsAffected(), nil
}

// pgxTx wraps pgx.Tx to implement the DBTx interface.
type pgxTx struct {
	tx pgx.Tx
}

func (p *pgxTx) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := p.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxRows{rows: rows}, nil
}

func (p *pgxTx) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	tag, err := p.tx.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &pgxResult{tag: tag}, nil
}

func (p *pgxTx) Commit(ctx context.Context) error {
	return p.tx.Commit(ctx)
}

func (p *pgxTx) Rollback(ctx context.Context) error {
	if err := p.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}

	return nil
}
