package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect import
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine/internal/adapters"
)

const (
	defaultEventsTableName       = "inputs"
	defaultKeyframesTableName    = "keyframes"
	defaultImportBatchSize       = 1000
	logMsgBuildSelectQueryFailed = "failed to build select query"
	logMsgBuildInsertQueryFailed = "failed to build insert query"
	logMsgDBQueryFailed          = "database query execution failed"
	logMsgDBExecFailed           = "database execution failed"
	logMsgBeginReadFailed        = "failed to begin read session"
	logMsgCloseRowsFailed        = "failed to close database rows"
	logMsgRollbackFailed         = "failed to roll back transaction"
	logMsgScanRowFailed          = "failed to scan database row"
	logMsgDecodeKeyframeFailed   = "failed to decode keyframe image"
	logMsgSegmentStreamed        = "segment streamed"
	logMsgKeyframeLoaded         = "keyframe loaded"
	logMsgKeyframeFallback       = "no keyframe stored, using blank keyframe"
	logMsgKeyframeSaved          = "keyframe saved"
	logMsgSQLExecuted            = "executed sql for: "
	logAttrError                 = "error"
	logAttrQuery                 = "query"
	logAttrSegment               = "segment"
	logAttrRows                  = "rows"
	logAttrTimestamp             = "timestamp"
	logAttrDurationMS            = "duration_ms"
	logActionStream              = "stream"
	logActionNearestBefore       = "nearest keyframe"
	logActionPut                 = "put keyframe"
	operationStream              = "stream"
	operationLoadKeyframe        = "load_keyframe"
	operationSaveKeyframe        = "save_keyframe"
	colTimestamp                 = "timestamp"
	colX                         = "x"
	colY                         = "y"
	colWidth                     = "width"
	colHeight                    = "height"
	colColor                     = "color"
	colHashedUserID              = "hashed_user_id"
	colImage                     = "image"
	dialectPostgres              = "postgres"
)

var (
	// ErrNilDatabaseConnection is returned when a constructor receives a nil connection.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when a table name option receives an empty name.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrInvalidBatchSize is returned when the import batch size is out of range.
	ErrInvalidBatchSize = errors.New("import batch size is out of range")

	// ErrUnknownSegment is returned when a segment ID is not part of the partition catalog.
	ErrUnknownSegment = errors.New("segment is not part of the partition catalog")

	ErrBuildingQueryFailed       = errors.New("building query failed")
	ErrBeginningReadFailed       = errors.New("beginning read session failed")
	ErrQueryingEventsFailed      = errors.New("querying placements failed")
	ErrScanningDBRowFailed       = errors.New("scanning db row failed")
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
	ErrImportingPlacementsFailed = errors.New("importing placements failed")
	ErrCreatingSchemaFailed      = errors.New("creating schema failed")
	ErrCountingPlacementsFailed  = errors.New("counting placements failed")

	// ErrNoPlacements is returned by TimestampRange when the events table is empty.
	ErrNoPlacements = errors.New("no placements stored")
)

// EventStore is the PostgreSQL backed placement log and keyframe store.
// It implements timelapse.EventSource and timelapse.KeyframeStore.
type EventStore struct {
	db                 adapters.DBAdapter
	eventsTableName    string
	keyframesTableName string
	catalog            timelapse.PartitionCatalog
	geometry           timelapse.GeometryTimeline
	directTableReads   bool
	importBatchSize    int
	logger             timelapse.Logger
	contextualLogger   timelapse.ContextualLogger
	metricsCollector   timelapse.MetricsCollector
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool with optional configuration.
// Only this variant imports with the COPY protocol.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options)
}

// NewEventStoreFromPGXPoolAndReplica creates a new EventStore that reads from replica and writes to primary.
func NewEventStoreFromPGXPoolAndReplica(primary *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if primary == nil || replica == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(primary, replica), options)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB with optional configuration.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB with optional configuration.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options)
}

func newEventStore(db adapters.DBAdapter, options []Option) (*EventStore, error) {
	es := &EventStore{
		db:                 db,
		eventsTableName:    defaultEventsTableName,
		keyframesTableName: defaultKeyframesTableName,
		catalog:            timelapse.DefaultPartitionCatalog(),
		geometry:           timelapse.DefaultGeometryTimeline(),
		importBatchSize:    defaultImportBatchSize,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Catalog returns the partition catalog the store resolves segments with.
func (es *EventStore) Catalog() timelapse.PartitionCatalog {
	return es.catalog
}

// BeginRead opens a read-only transaction. All segments streamed through the returned reader
// see the same snapshot of the placement log.
func (es *EventStore) BeginRead(ctx context.Context) (timelapse.EventReader, error) {
	tx, err := es.db.Begin(ctx, true)
	if err != nil {
		es.logError(ctx, logMsgBeginReadFailed, err)
		es.recordErrorMetrics(ctx, operationStream)

		return nil, errors.Join(timelapse.ErrUpstreamReadFailed, ErrBeginningReadFailed, err)
	}

	return &reader{store: es, tx: tx}, nil
}

type reader struct {
	store  *EventStore
	tx     adapters.DBTx
	closed bool
}

// Stream yields the placements of one segment between from and until, both inclusive.
func (r *reader) Stream(
	ctx context.Context,
	segmentID string,
	from, until time.Time,
) iter.Seq2[timelapse.PlacementEvent, error] {

	return func(yield func(timelapse.PlacementEvent, error) bool) {
		es := r.store
		labels := map[string]string{timelapse.LabelOperation: operationStream, timelapse.LabelSegment: segmentID}

		fail := func(err error) {
			es.recordErrorMetrics(ctx, operationStream)

			if ctx.Err() != nil {
				yield(timelapse.PlacementEvent{}, ctx.Err())
				return
			}

			yield(timelapse.PlacementEvent{}, errors.Join(timelapse.ErrUpstreamReadFailed, err))
		}

		if r.closed {
			fail(errors.Join(ErrQueryingEventsFailed, errors.New("read session is closed")))
			return
		}

		sqlQuery, args, buildErr := es.buildStreamQuery(segmentID, from, until)
		if buildErr != nil {
			es.logError(ctx, logMsgBuildSelectQueryFailed, buildErr, logAttrSegment, segmentID)
			fail(buildErr)

			return
		}

		start := time.Now()
		rows, queryErr := r.tx.Query(ctx, sqlQuery, args...)
		es.logQueryWithDuration(ctx, sqlQuery, logActionStream, time.Since(start))

		if queryErr != nil {
			es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
			fail(errors.Join(ErrQueryingEventsFailed, queryErr))

			return
		}
		defer es.closeRows(ctx, rows)

		count := 0

		for rows.Next() {
			event, scanErr := scanPlacement(rows)
			if scanErr != nil {
				es.logError(ctx, logMsgScanRowFailed, scanErr, logAttrSegment, segmentID)
				fail(errors.Join(ErrScanningDBRowFailed, scanErr))

				return
			}

			if !yield(event, nil) {
				return
			}

			count++
		}

		if rowsErr := rows.Err(); rowsErr != nil {
			es.logError(ctx, logMsgDBQueryFailed, rowsErr, logAttrSegment, segmentID)
			fail(errors.Join(ErrQueryingEventsFailed, rowsErr))

			return
		}

		duration := time.Since(start)
		labels[timelapse.LabelStatus] = timelapse.StatusSuccess
		es.recordDurationMetrics(ctx, timelapse.MetricSegmentQueryDuration, duration, labels)
		es.logOperation(
			ctx,
			logMsgSegmentStreamed,
			logAttrSegment, segmentID,
			logAttrRows, count,
			logAttrDurationMS, toMilliseconds(duration),
		)
	}
}

// Close ends the read-only transaction. Calling it more than once is a no-op.
func (r *reader) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	return r.tx.Rollback(context.Background())
}

// buildStreamQuery selects from the segment's materialized view, or from the events table bounded
// by the segment's range when direct table reads are configured.
func (es *EventStore) buildStreamQuery(segmentID string, from, until time.Time) (string, []any, error) {
	mapping, found := es.segmentMapping(segmentID)
	if !found {
		return "", nil, errors.Join(ErrUnknownSegment, errors.New(segmentID))
	}

	conditions := []exp.Expression{goqu.C(colTimestamp).Gte(from), goqu.C(colTimestamp).Lte(until)}
	table := segmentID

	if es.directTableReads {
		table = es.eventsTableName
		conditions = append(conditions, rangeConditions(mapping.Range)...)
	}

	sqlQuery, args, err := goqu.Dialect(dialectPostgres).
		From(goqu.I(table)).
		Prepared(true).
		Select(placementColumns()...).
		Where(conditions...).
		Order(goqu.C(colTimestamp).Asc()).
		ToSQL()
	if err != nil {
		return "", nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, args, nil
}

func (es *EventStore) segmentMapping(segmentID string) (timelapse.SegmentMapping, bool) {
	for _, mapping := range es.catalog.Mappings() {
		if mapping.SegmentID == segmentID {
			return mapping, true
		}
	}

	return timelapse.SegmentMapping{}, false
}

// rangeConditions expresses a DateTimeRange with its own bound inclusivity.
func rangeConditions(r timelapse.DateTimeRange) []exp.Expression {
	column := goqu.C(colTimestamp)
	lower, upper := column.Gt(r.Start()), column.Lt(r.End())

	if r.StartInclusive() {
		lower = column.Gte(r.Start())
	}

	if r.EndInclusive() {
		upper = column.Lte(r.End())
	}

	return []exp.Expression{lower, upper}
}

func placementColumns() []any {
	return []any{colTimestamp, colX, colY, colWidth, colHeight, colColor, colHashedUserID}
}

func scanPlacement(rows adapters.DBRows) (timelapse.PlacementEvent, error) {
	var (
		timestamp           time.Time
		x, y, width, height int16
		color               int32
		hashedUserID        []byte
	)

	if err := rows.Scan(&timestamp, &x, &y, &width, &height, &color, &hashedUserID); err != nil {
		return timelapse.PlacementEvent{}, err
	}

	return timelapse.BuildRectanglePlacementEvent(
		timestamp.UTC(),
		x, y, width, height,
		timelapse.ColorFromARGB(color),
		hashedUserID,
	), nil
}

// closeRows safely closes database rows and logs any errors.
func (es *EventStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		es.logWarning(ctx, logMsgCloseRowsFailed, closeErr)
	}
}

// rollback safely rolls back a transaction and logs any errors.
func (es *EventStore) rollback(ctx context.Context, tx adapters.DBTx) {
	if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
		es.logWarning(ctx, logMsgRollbackFailed, rollbackErr)
	}
}

// NearestBefore returns the latest stored keyframe strictly before target.
// When none is stored, it returns timelapse.BlankKeyframe for the configured geometry.
func (es *EventStore) NearestBefore(ctx context.Context, target time.Time) (timelapse.Keyframe, error) {
	fail := func(err error) (timelapse.Keyframe, error) {
		es.recordErrorMetrics(ctx, operationLoadKeyframe)
		return timelapse.Keyframe{}, errors.Join(timelapse.ErrUpstreamReadFailed, timelapse.ErrLoadingKeyframeFailed, err)
	}

	sqlQuery, args, buildErr := goqu.Dialect(dialectPostgres).
		From(goqu.I(es.keyframesTableName)).
		Prepared(true).
		Select(colTimestamp, colImage).
		Where(goqu.C(colTimestamp).Lt(target)).
		Order(goqu.C(colTimestamp).Desc()).
		Limit(1).
		ToSQL()
	if buildErr != nil {
		es.logError(ctx, logMsgBuildSelectQueryFailed, buildErr)
		return fail(errors.Join(ErrBuildingQueryFailed, buildErr))
	}

	start := time.Now()
	rows, queryErr := es.db.Query(ctx, sqlQuery, args...)
	es.logQueryWithDuration(ctx, sqlQuery, logActionNearestBefore, time.Since(start))

	if queryErr != nil {
		es.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return fail(queryErr)
	}
	defer es.closeRows(ctx, rows)

	if !rows.Next() {
		if rowsErr := rows.Err(); rowsErr != nil {
			es.logError(ctx, logMsgDBQueryFailed, rowsErr)
			return fail(rowsErr)
		}

		es.logOperation(ctx, logMsgKeyframeFallback, logAttrTimestamp, target)

		return timelapse.BlankKeyframe(es.geometry, target), nil
	}

	var (
		timestamp time.Time
		image     []byte
	)

	if scanErr := rows.Scan(&timestamp, &image); scanErr != nil {
		es.logError(ctx, logMsgScanRowFailed, scanErr)
		return fail(errors.Join(ErrScanningDBRowFailed, scanErr))
	}

	frame, decodeErr := timelapse.DecodeFrameBytes(image)
	if decodeErr != nil {
		es.logError(ctx, logMsgDecodeKeyframeFailed, decodeErr, logAttrTimestamp, timestamp)
		return fail(decodeErr)
	}

	keyframe, buildErr := timelapse.BuildKeyframe(frame, timestamp)
	if buildErr != nil {
		return fail(buildErr)
	}

	duration := time.Since(start)
	es.recordDurationMetrics(ctx, timelapse.MetricKeyframeLoadDuration, duration, operationLabels(operationLoadKeyframe, timelapse.StatusSuccess))
	es.logOperation(ctx, logMsgKeyframeLoaded, logAttrTimestamp, keyframe.Timestamp, logAttrDurationMS, toMilliseconds(duration))

	return keyframe, nil
}

// Put stores a keyframe as a PNG image. A keyframe with the same timestamp is never overwritten.
func (es *EventStore) Put(ctx context.Context, keyframe timelapse.Keyframe) error {
	fail := func(err error) error {
		es.recordErrorMetrics(ctx, operationSaveKeyframe)
		return errors.Join(timelapse.ErrSavingKeyframeFailed, err)
	}

	if err := keyframe.Validate(); err != nil {
		return err
	}

	image, encodeErr := timelapse.EncodeFrameBytes(keyframe.Frame)
	if encodeErr != nil {
		return fail(encodeErr)
	}

	sqlQuery, args, buildErr := goqu.Dialect(dialectPostgres).
		Insert(goqu.I(es.keyframesTableName)).
		Prepared(true).
		Rows(goqu.Record{
			colTimestamp: keyframe.Timestamp,
			colWidth:     keyframe.Frame.Width(),
			colHeight:    keyframe.Frame.Height(),
			colImage:     image,
		}).
		OnConflict(goqu.DoNothing()).
		ToSQL()
	if buildErr != nil {
		es.logError(ctx, logMsgBuildInsertQueryFailed, buildErr)
		return fail(errors.Join(ErrBuildingQueryFailed, buildErr))
	}

	start := time.Now()
	result, execErr := es.db.Exec(ctx, sqlQuery, args...)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionPut, duration)

	if execErr != nil {
		es.logError(ctx, logMsgDBExecFailed, execErr, logAttrTimestamp, keyframe.Timestamp)
		return fail(execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		return fail(errors.Join(ErrGettingRowsAffectedFailed, rowsAffectedErr))
	}

	if rowsAffected == 0 {
		return timelapse.ErrKeyframeAlreadyExists
	}

	es.recordDurationMetrics(ctx, timelapse.MetricKeyframeSaveDuration, duration, operationLabels(operationSaveKeyframe, timelapse.StatusSuccess))
	es.logOperation(ctx, logMsgKeyframeSaved, logAttrTimestamp, keyframe.Timestamp, logAttrDurationMS, toMilliseconds(duration))

	return nil
}

// quoteIdentifier quotes a possibly schema qualified name for use in DDL statements.
func quoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}
