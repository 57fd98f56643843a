// Package ingest reads the raw r/place 2022 placement dataset.
//
// The dataset ships as gzip compressed CSV segment files inputs_00.csv.gzip .. inputs_78.csv.gzip with the
// columns timestamp, user_id, pixel_color and coordinate. Rows within a file are not ordered by timestamp.
// Reader turns such a stream into timelapse.PlacementEvent values, ready for a bulk import:
//
//	events := ingest.ReadSegments(ctx, "/data/rplace", ingest.AllSegments())
//	imported, err := store.ImportPlacements(ctx, events)
package ingest
