package badgerengine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

const (
	keyPrefix              = "keyframe:"
	logMsgKeyframeLoaded   = "keyframe loaded"
	logMsgKeyframeFallback = "no keyframe stored, using blank keyframe"
	logMsgKeyframeSaved    = "keyframe saved"
	logMsgLoadFailed       = "loading keyframe failed"
	logMsgSaveFailed       = "saving keyframe failed"
	logAttrError           = "error"
	logAttrTimestamp       = "timestamp"
	logAttrDurationMS      = "duration_ms"
	operationLoadKeyframe  = "load_keyframe"
	operationSaveKeyframe  = "save_keyframe"
)

// ErrOpeningStoreFailed is returned when the Badger database cannot be opened.
var ErrOpeningStoreFailed = errors.New("opening keyframe store failed")

// KeyframeStore is a timelapse.KeyframeStore backed by a Badger database.
type KeyframeStore struct {
	db               *badger.DB
	geometry         timelapse.GeometryTimeline
	logger           timelapse.Logger
	contextualLogger timelapse.ContextualLogger
	metricsCollector timelapse.MetricsCollector
}

// Option defines a functional option for configuring KeyframeStore.
type Option func(*KeyframeStore) error

// WithGeometry sets the geometry timeline used to build the blank fallback keyframe.
func WithGeometry(geometry timelapse.GeometryTimeline) Option {
	return func(s *KeyframeStore) error {
		if geometry.IsEmpty() {
			return timelapse.ErrInvalidGeometry
		}

		s.geometry = geometry

		return nil
	}
}

// WithLogger sets the logger for the KeyframeStore.
func WithLogger(logger timelapse.Logger) Option {
	return func(s *KeyframeStore) error {
		if logger == nil {
			return timelapse.ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets the contextual logger for the KeyframeStore. It takes precedence over WithLogger.
func WithContextualLogger(logger timelapse.ContextualLogger) Option {
	return func(s *KeyframeStore) error {
		if logger == nil {
			return timelapse.ErrNilLogger
		}

		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for the KeyframeStore.
func WithMetrics(collector timelapse.MetricsCollector) Option {
	return func(s *KeyframeStore) error {
		if collector == nil {
			return timelapse.ErrNilMetricsCollector
		}

		s.metricsCollector = collector

		return nil
	}
}

// Open opens or creates a keyframe store in the directory at path.
func Open(path string, options ...Option) (*KeyframeStore, error) {
	return open(badger.DefaultOptions(path), options)
}

// OpenInMemory creates a keyframe store that lives only as long as the process.
func OpenInMemory(options ...Option) (*KeyframeStore, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), options)
}

func open(badgerOptions badger.Options, options []Option) (*KeyframeStore, error) {
	s := &KeyframeStore{geometry: timelapse.DefaultGeometryTimeline()}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	db, err := badger.Open(badgerOptions.WithLogger(nil))
	if err != nil {
		return nil, errors.Join(ErrOpeningStoreFailed, err)
	}

	s.db = db

	return s, nil
}

// Close closes the underlying database.
func (s *KeyframeStore) Close() error {
	return s.db.Close()
}

// keyFor encodes the timestamp so that byte order equals time order, including instants before 1970.
func keyFor(t time.Time) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], uint64(t.UnixNano())^(1<<63))

	return key
}

func timestampOf(key []byte) time.Time {
	encoded := binary.BigEndian.Uint64(key[len(keyPrefix):]) ^ (1 << 63)

	return time.Unix(0, int64(encoded)).UTC()
}

// NearestBefore returns the latest keyframe strictly before target, or timelapse.BlankKeyframe if there is none.
func (s *KeyframeStore) NearestBefore(ctx context.Context, target time.Time) (timelapse.Keyframe, error) {
	start := time.Now()

	var (
		image     []byte
		timestamp time.Time
	)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := keyFor(target)

		for it.Seek(seek); it.Valid(); it.Next() {
			item := it.Item()
			if bytes.Equal(item.Key(), seek) {
				continue
			}

			timestamp = timestampOf(item.KeyCopy(nil))

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			image = value

			return nil
		}

		return nil
	})
	if err != nil {
		return s.failLoad(ctx, err)
	}

	if image == nil {
		s.logInfo(ctx, logMsgKeyframeFallback, logAttrTimestamp, target)
		return timelapse.BlankKeyframe(s.geometry, target), nil
	}

	frame, err := timelapse.DecodeFrameBytes(image)
	if err != nil {
		return s.failLoad(ctx, err)
	}

	keyframe, err := timelapse.BuildKeyframe(frame, timestamp)
	if err != nil {
		return s.failLoad(ctx, err)
	}

	duration := time.Since(start)
	s.recordDuration(ctx, timelapse.MetricKeyframeLoadDuration, duration, operationLoadKeyframe)
	s.logInfo(ctx, logMsgKeyframeLoaded, logAttrTimestamp, timestamp, logAttrDurationMS, toMilliseconds(duration))

	return keyframe, nil
}

func (s *KeyframeStore) failLoad(ctx context.Context, err error) (timelapse.Keyframe, error) {
	s.logError(ctx, logMsgLoadFailed, err)
	s.recordError(ctx, operationLoadKeyframe)

	return timelapse.Keyframe{}, errors.Join(timelapse.ErrUpstreamReadFailed, timelapse.ErrLoadingKeyframeFailed, err)
}

// Put stores a keyframe. It never overwrites a keyframe with the same timestamp.
func (s *KeyframeStore) Put(ctx context.Context, keyframe timelapse.Keyframe) error {
	if err := keyframe.Validate(); err != nil {
		return err
	}

	start := time.Now()

	image, err := timelapse.EncodeFrameBytes(keyframe.Frame)
	if err != nil {
		return s.failSave(ctx, err)
	}

	key := keyFor(keyframe.Timestamp)

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, getErr := txn.Get(key); getErr == nil {
			return timelapse.ErrKeyframeAlreadyExists
		} else if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}

		return txn.Set(key, image)
	})

	if errors.Is(err, timelapse.ErrKeyframeAlreadyExists) {
		return err
	}

	if err != nil {
		return s.failSave(ctx, err)
	}

	duration := time.Since(start)
	s.recordDuration(ctx, timelapse.MetricKeyframeSaveDuration, duration, operationSaveKeyframe)
	s.logInfo(ctx, logMsgKeyframeSaved, logAttrTimestamp, keyframe.Timestamp, logAttrDurationMS, toMilliseconds(duration))

	return nil
}

func (s *KeyframeStore) failSave(ctx context.Context, err error) error {
	s.logError(ctx, logMsgSaveFailed, err)
	s.recordError(ctx, operationSaveKeyframe)

	return errors.Join(timelapse.ErrSavingKeyframeFailed, err)
}

// Timestamps returns the timestamps of all stored keyframes in ascending order.
func (s *KeyframeStore) Timestamps(_ context.Context) ([]time.Time, error) {
	timestamps := make([]time.Time, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			timestamps = append(timestamps, timestampOf(it.Item().Key()))
		}

		return nil
	})
	if err != nil {
		return nil, errors.Join(timelapse.ErrUpstreamReadFailed, err)
	}

	return timestamps, nil
}

func (s *KeyframeStore) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.InfoContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Info(msg, args...)
	}
}

func (s *KeyframeStore) logError(ctx context.Context, msg string, err error) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.ErrorContext(ctx, msg, logAttrError, err.Error())
	case s.logger != nil:
		s.logger.Error(msg, logAttrError, err.Error())
	}
}

func (s *KeyframeStore) recordDuration(ctx context.Context, metric string, d time.Duration, operation string) {
	labels := map[string]string{
		timelapse.LabelOperation: operation,
		timelapse.LabelStatus:    timelapse.StatusSuccess,
	}

	switch collector := s.metricsCollector.(type) {
	case nil:
	case timelapse.ContextualMetricsCollector:
		collector.RecordDurationContext(ctx, metric, d, labels)
	default:
		collector.RecordDuration(metric, d, labels)
	}
}

func (s *KeyframeStore) recordError(ctx context.Context, operation string) {
	labels := map[string]string{
		timelapse.LabelOperation: operation,
		timelapse.LabelStatus:    timelapse.StatusError,
	}

	switch collector := s.metricsCollector.(type) {
	case nil:
	case timelapse.ContextualMetricsCollector:
		collector.IncrementCounterContext(ctx, timelapse.MetricErrors, labels)
	default:
		collector.IncrementCounter(timelapse.MetricErrors, labels)
	}
}

func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
