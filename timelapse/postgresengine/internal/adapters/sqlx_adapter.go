package adapters

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// SQLXAdapter implements DBAdapter for sqlx.DB
type SQLXAdapter struct {
	db *sqlx.DB
}

// NewSQLXAdapter creates a new SQLX adapter
func NewSQLXAdapter(db *sqlx.DB) *SQLXAdapter {
	return &SQLXAdapter{db: db}
}

// Query executes a query using the sqlx.DB and returns wrapped rows.
func (s *SQLXAdapter) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &sqlxRows{rows: rows}, nil
}

// Exec executes a query using the sqlx.DB and returns wrapped result.
func (s *SQLXAdapter) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}

// Begin starts a transaction with sqlx.DB.BeginTxx.
func (s *SQLXAdapter) Begin(ctx context.Context, readOnly bool) (DBTx, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return nil, err
	}

	return &sqlxTx{tx: tx}, nil
}

type sqlxRows struct {
	rows *sqlx.Rows
}

func (s *sqlxRows) Next() bool {
	return s.rows.Next()
}

func (s *sqlxRows) Scan(dest ...any) error {
	return s.rows.Scan(dest...)
}

func (s *sqlxRows) Err() error {
	return s.rows.Err()
}

func (s *sqlxRows) Close() error {
	return s.rows.Close()
}

type sqlxTx struct {
	tx *sqlx.Tx
}

func (s *sqlxTx) Query(ctx context.Context, query string, args ...any) (DBRows, error) {
	rows, err := s.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &sqlxRows{rows: rows}, nil
}

func (s *sqlxTx) Exec(ctx context.Context, query string, args ...any) (DBResult, error) {
	result, err := s.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &stdResult{result: result}, nil
}

func (s *sqlxTx) Commit(_ context.Context) error {
	return s.tx.Commit()
}

func (s *sqlxTx) Rollback(_ context.Context) error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}

	return nil
}
