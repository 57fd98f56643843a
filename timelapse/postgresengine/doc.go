// Package postgresengine provides a PostgreSQL implementation of the timelapse storage contracts.
//
// EventStore implements timelapse.EventSource over per-segment materialized views of the raw placement
// table and timelapse.KeyframeStore over a keyframes table holding PNG images. It supports multiple
// database adapters (pgx, sql.DB, sqlx).
//
// Key features:
//   - Read sessions as read-only transactions, one consistent snapshot per replay
//   - Bulk import with the COPY protocol (pgx) or batched INSERTs in a single transaction
//   - Schema and segment view creation, timestamp range discovery and row counts
//   - Configurable table names, partition catalog and geometry
//   - Dual-logger support and optional metrics collection
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(
//		db,
//		postgresengine.WithLogger(logger),
//	)
//
//	_ = store.CreateSchema(ctx)
//	imported, _ := store.ImportPlacements(ctx, placements)
//	_ = store.CreateSegmentViews(ctx)
//
//	replayer, _ := timelapse.NewReplayer(store, store)
package postgresengine
