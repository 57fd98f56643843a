package adapters

import "context"

// DBAdapter defines the interface for database operations needed by the placement store.
type DBAdapter interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
	Begin(ctx context.Context, readOnly bool) (DBTx, error)
}

// DBTx defines the interface for a transaction. Rollback after Commit is a no-op.
type DBTx interface {
	Query(ctx context.Context, query string, args ...any) (DBRows, error)
	Exec(ctx context.Context, query string, args ...any) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DBRows defines the interface for query result rows.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}

// Copier is implemented by adapters that support the COPY protocol.
// next returns the following row, or a nil row when the source is exhausted.
type Copier interface {
	CopyFrom(ctx context.Context, table string, columns []string, next func() ([]any, error)) (int64, error)
}
