package postgresengine

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine/internal/adapters"
)

const (
	logMsgImportFailed    = "placement import failed"
	logMsgImportCompleted = "placement import completed"
	logAttrImportMode     = "mode"
	logActionImportBatch  = "import batch"
	importModeCopy        = "copy"
	importModeInsert      = "insert"
	operationImport       = "import"
	maxPostgresBindArgs   = 65535
	placementColumnCount  = 7
	maxImportBatchSize    = maxPostgresBindArgs / placementColumnCount
)

// ImportPlacements writes the placements of events into the events table and returns the number of rows written.
// The import is atomic: when events yields an error or ctx is canceled, nothing is committed.
// Stores created from a pgx pool use the COPY protocol, the others use batched multi-row INSERTs in one transaction.
func (es *EventStore) ImportPlacements(
	ctx context.Context,
	events iter.Seq2[timelapse.PlacementEvent, error],
) (int64, error) {

	start := time.Now()
	mode := importModeInsert

	var (
		imported int64
		err      error
	)

	if copier, ok := es.db.(adapters.Copier); ok {
		mode = importModeCopy
		imported, err = es.importWithCopy(ctx, copier, events)
	} else {
		imported, err = es.importWithInserts(ctx, events)
	}

	duration := time.Since(start)

	if err != nil {
		es.logError(ctx, logMsgImportFailed, err, logAttrImportMode, mode)
		es.recordErrorMetrics(ctx, operationImport)

		if ctx.Err() != nil {
			return 0, errors.Join(ErrImportingPlacementsFailed, ctx.Err())
		}

		return 0, errors.Join(ErrImportingPlacementsFailed, err)
	}

	es.recordDurationMetrics(ctx, timelapse.MetricImportDuration, duration, operationLabels(operationImport, timelapse.StatusSuccess))
	es.recordValueMetrics(ctx, timelapse.MetricPlacementsImported, float64(imported), operationLabels(operationImport, timelapse.StatusSuccess))
	es.logOperation(
		ctx,
		logMsgImportCompleted,
		logAttrImportMode, mode,
		logAttrRows, imported,
		logAttrDurationMS, toMilliseconds(duration),
	)

	return imported, nil
}

func (es *EventStore) importWithCopy(
	ctx context.Context,
	copier adapters.Copier,
	events iter.Seq2[timelapse.PlacementEvent, error],
) (int64, error) {

	next, stop := iter.Pull2(events)
	defer stop()

	columns := make([]string, 0, placementColumnCount)
	for _, column := range placementColumns() {
		columns = append(columns, column.(string))
	}

	return copier.CopyFrom(ctx, es.eventsTableName, columns, func() ([]any, error) {
		event, err, ok := next()
		if !ok {
			return nil, nil
		}

		if err != nil {
			return nil, err
		}

		return placementRow(event), nil
	})
}

func (es *EventStore) importWithInserts(
	ctx context.Context,
	events iter.Seq2[timelapse.PlacementEvent, error],
) (int64, error) {

	tx, beginErr := es.db.Begin(ctx, false)
	if beginErr != nil {
		return 0, beginErr
	}
	defer es.rollback(ctx, tx)

	var imported int64
	batch := make([]any, 0, es.importBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		written, err := es.insertBatch(ctx, tx, batch)
		if err != nil {
			return err
		}

		imported += written
		batch = batch[:0]

		return nil
	}

	for event, err := range events {
		if err != nil {
			return 0, err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}

		batch = append(batch, placementRecord(event))

		if len(batch) == es.importBatchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}

	if err := flush(); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	return imported, nil
}

func (es *EventStore) insertBatch(ctx context.Context, tx adapters.DBTx, records []any) (int64, error) {
	sqlQuery, args, buildErr := goqu.Dialect(dialectPostgres).
		Insert(goqu.I(es.eventsTableName)).
		Prepared(true).
		Rows(records...).
		ToSQL()
	if buildErr != nil {
		es.logError(ctx, logMsgBuildInsertQueryFailed, buildErr)
		return 0, errors.Join(ErrBuildingQueryFailed, buildErr)
	}

	start := time.Now()
	result, execErr := tx.Exec(ctx, sqlQuery, args...)
	es.logDebug(ctx, logMsgSQLExecuted+logActionImportBatch, logAttrRows, len(records), logAttrDurationMS, toMilliseconds(time.Since(start)))

	if execErr != nil {
		return 0, execErr
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		return 0, errors.Join(ErrGettingRowsAffectedFailed, rowsAffectedErr)
	}

	return rowsAffected, nil
}

func placementRow(event timelapse.PlacementEvent) []any {
	return []any{
		event.Timestamp,
		event.X,
		event.Y,
		event.Width,
		event.Height,
		event.Color.ARGB(),
		event.ActorHash,
	}
}

func placementRecord(event timelapse.PlacementEvent) goqu.Record {
	return goqu.Record{
		colTimestamp:    event.Timestamp,
		colX:            event.X,
		colY:            event.Y,
		colWidth:        event.Width,
		colHeight:       event.Height,
		colColor:        event.Color.ARGB(),
		colHashedUserID: event.ActorHash,
	}
}
