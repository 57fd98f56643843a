// Package badgerengine provides an embedded timelapse.KeyframeStore on Badger.
//
// Keyframes are stored as PNG images under keys that sort by timestamp, so NearestBefore
// is a single reverse seek. It is meant for local rendering runs where keyframes should not
// be written back into the placement database.
package badgerengine
