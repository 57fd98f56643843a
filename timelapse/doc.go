// Package timelapse reconstructs the state of the r/place 2022 canvas at arbitrary instants
// and emits evenly spaced frames for timelapse generation.
//
// The placement log is partitioned into time segments. A replay
//   - prunes the segments with a PartitionCatalog,
//   - starts from the nearest Keyframe strictly before the window,
//   - streams PlacementEvents from an EventSource in timestamp order,
//   - folds them into a Reconstructor and emits Snapshots at a fixed cadence.
//
// Storage lives in sub-packages: postgresengine implements EventSource and KeyframeStore on PostgreSQL,
// badgerengine implements KeyframeStore on an embedded Badger database.
//
// Common usage pattern:
//
//	replayer, err := timelapse.NewReplayer(store, store, timelapse.WithLogger(logger))
//	if err != nil {
//		// handle error
//	}
//
//	window, _ := timelapse.HalfOpenRange(start, end)
//	for snapshot, err := range replayer.Frames(ctx, window, time.Minute) {
//		if err != nil {
//			// handle error
//		}
//		// encode snapshot.Frame
//	}
package timelapse
