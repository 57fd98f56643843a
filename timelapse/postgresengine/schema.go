package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

const (
	logMsgSchemaCreated       = "schema created"
	logMsgSegmentViewCreated  = "segment view created and refreshed"
	logMsgTimestampRangeFound = "timestamp range discovered"
	logAttrTable              = "table"
	logAttrRange              = "range"
	logActionCreateSchema     = "create schema"
	logActionCreateView       = "create segment view"
	logActionTimestampRange   = "timestamp range"
	logActionCount            = "count placements"
	operationCreateSchema     = "create_schema"
	operationTimestampRange   = "timestamp_range"
	operationCount            = "count"
)

const createEventsTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	"timestamp" timestamptz NOT NULL,
	x smallint NOT NULL,
	y smallint NOT NULL,
	width smallint NOT NULL DEFAULT 1,
	height smallint NOT NULL DEFAULT 1,
	color integer NOT NULL,
	hashed_user_id bytea
)`

const createKeyframesTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	"timestamp" timestamptz PRIMARY KEY,
	width integer NOT NULL,
	height integer NOT NULL,
	image bytea NOT NULL
)`

const (
	createSegmentViewSQL  = `CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS %s WITH NO DATA`
	createSegmentIndexSQL = `CREATE INDEX IF NOT EXISTS %s ON %s ("timestamp")`
	refreshSegmentViewSQL = `REFRESH MATERIALIZED VIEW %s`
)

// CreateSchema creates the events and keyframes tables if they do not exist.
func (es *EventStore) CreateSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(createEventsTableSQL, quoteIdentifier(es.eventsTableName)),
		fmt.Sprintf(createKeyframesTableSQL, quoteIdentifier(es.keyframesTableName)),
	}

	for _, statement := range statements {
		if err := es.execDDL(ctx, statement, logActionCreateSchema); err != nil {
			return err
		}
	}

	es.logOperation(ctx, logMsgSchemaCreated, logAttrTable, es.eventsTableName)

	return nil
}

// CreateSegmentViews creates one materialized view per catalog segment, named after the segment ID,
// holding the placements inside the segment's range, plus an index on their timestamp.
// Each view is bounded with its own range's inclusivity so that adjacent segments never share a row.
// Views that already exist are refreshed, so calling it again after an import makes the new placements visible.
func (es *EventStore) CreateSegmentViews(ctx context.Context) error {
	for _, mapping := range es.catalog.Mappings() {
		selectQuery, _, buildErr := goqu.Dialect(dialectPostgres).
			From(goqu.I(es.eventsTableName)).
			Where(rangeConditions(mapping.Range)...).
			ToSQL()
		if buildErr != nil {
			es.logError(ctx, logMsgBuildSelectQueryFailed, buildErr, logAttrSegment, mapping.SegmentID)
			es.recordErrorMetrics(ctx, operationCreateSchema)

			return errors.Join(ErrCreatingSchemaFailed, ErrBuildingQueryFailed, buildErr)
		}

		view := quoteIdentifier(mapping.SegmentID)
		index := quoteIdentifier(mapping.SegmentID + "_timestamp_idx")

		statements := []string{
			fmt.Sprintf(createSegmentViewSQL, view, selectQuery),
			fmt.Sprintf(createSegmentIndexSQL, index, view),
			fmt.Sprintf(refreshSegmentViewSQL, view),
		}

		for _, statement := range statements {
			if err := es.execDDL(ctx, statement, logActionCreateView); err != nil {
				return err
			}
		}

		es.logOperation(ctx, logMsgSegmentViewCreated, logAttrSegment, mapping.SegmentID, logAttrRange, mapping.Range.String())
	}

	return nil
}

func (es *EventStore) execDDL(ctx context.Context, statement string, action string) error {
	start := time.Now()
	_, execErr := es.db.Exec(ctx, statement)
	es.logQueryWithDuration(ctx, statement, action, time.Since(start))

	if execErr != nil {
		es.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, statement)
		es.recordErrorMetrics(ctx, operationCreateSchema)

		return errors.Join(ErrCreatingSchemaFailed, execErr)
	}

	return nil
}

// TimestampRange scans every placement and returns the closed range spanning the earliest and latest timestamp.
// It returns ErrNoPlacements when the events table is empty.
func (es *EventStore) TimestampRange(ctx context.Context) (timelapse.DateTimeRange, error) {
	fail := func(err error) (timelapse.DateTimeRange, error) {
		es.recordErrorMetrics(ctx, operationTimestampRange)
		return timelapse.DateTimeRange{}, errors.Join(timelapse.ErrUpstreamReadFailed, err)
	}

	sqlQuery, args, buildErr := goqu.Dialect(dialectPostgres).
		From(goqu.I(es.eventsTableName)).
		Prepared(true).
		Select(colTimestamp).
		ToSQL()
	if buildErr != nil {
		return fail(errors.Join(ErrBuildingQueryFailed, buildErr))
	}

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery, args...)
	es.logQueryWithDuration(ctx, sqlQuery, logActionTimestampRange, time.Since(start))

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return fail(errors.Join(ErrQueryingEventsFailed, queryErr))
	}
	defer es.closeRows(ctx, rows)

	var (
		span  timelapse.DateTimeRange
		found bool
	)

	for rows.Next() {
		var timestamp time.Time
		if scanErr := rows.Scan(&timestamp); scanErr != nil {
			return fail(errors.Join(ErrScanningDBRowFailed, scanErr))
		}

		timestamp = timestamp.UTC()

		if !found {
			degenerate, err := timelapse.ClosedRange(timestamp, timestamp)
			if err != nil {
				return fail(err)
			}

			span, found = degenerate, true

			continue
		}

		span, _ = span.Extend(timestamp)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return fail(errors.Join(ErrQueryingEventsFailed, rowsErr))
	}

	if !found {
		return timelapse.DateTimeRange{}, ErrNoPlacements
	}

	es.logOperation(ctx, logMsgTimestampRangeFound, logAttrRange, span.String(), logAttrDurationMS, toMilliseconds(time.Since(start)))

	return span, nil
}

// CountPlacements returns the number of rows in the events table.
func (es *EventStore) CountPlacements(ctx context.Context) (int64, error) {
	fail := func(err error) (int64, error) {
		es.recordErrorMetrics(ctx, operationCount)
		return 0, errors.Join(timelapse.ErrUpstreamReadFailed, ErrCountingPlacementsFailed, err)
	}

	sqlQuery, args, buildErr := goqu.Dialect(dialectPostgres).
		From(goqu.I(es.eventsTableName)).
		Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		ToSQL()
	if buildErr != nil {
		return fail(errors.Join(ErrBuildingQueryFailed, buildErr))
	}

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery, args...)
	es.logQueryWithDuration(ctx, sqlQuery, logActionCount, time.Since(start))

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return fail(queryErr)
	}
	defer es.closeRows(ctx, rows)

	var count int64

	if !rows.Next() {
		return fail(errors.Join(ErrScanningDBRowFailed, rows.Err()))
	}

	if scanErr := rows.Scan(&count); scanErr != nil {
		return fail(errors.Join(ErrScanningDBRowFailed, scanErr))
	}

	return count, nil
}
