// Package framesink writes rendered frames as numbered PNG files next to a JSON-lines manifest.
package framesink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

// ManifestName is the file name of the manifest inside the output directory.
const ManifestName = "manifest.jsonl"

var (
	ErrOpeningSinkFailed  = errors.New("opening frame sink failed")
	ErrWritingFrameFailed = errors.New("writing frame failed")
	ErrReadingManifest    = errors.New("reading manifest failed")
)

// Entry describes one written frame.
type Entry struct {
	Index     int       `json:"index"`
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Sink writes frames into a directory. It is not safe for concurrent use.
type Sink struct {
	dir      string
	scale    int
	manifest *os.File
	encoder  *jsoniter.Encoder
	next     int
}

// Option configures a Sink.
type Option func(*Sink) error

// WithScale upscales every frame by factor before writing it.
func WithScale(factor int) Option {
	return func(s *Sink) error {
		if factor < 1 {
			return timelapse.ErrInvalidScale
		}

		s.scale = factor

		return nil
	}
}

// Open creates dir if needed and starts a new manifest in it, replacing an existing one.
func Open(dir string, options ...Option) (*Sink, error) {
	s := &Sink{dir: dir, scale: 1}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Join(ErrOpeningSinkFailed, err)
	}

	manifest, err := os.Create(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, errors.Join(ErrOpeningSinkFailed, err)
	}

	s.manifest = manifest
	s.encoder = jsoniter.ConfigFastest.NewEncoder(manifest)

	return s, nil
}

// Write stores the snapshot's frame as the next numbered PNG and appends it to the manifest.
func (s *Sink) Write(snapshot timelapse.Snapshot) (Entry, error) {
	frame := snapshot.Frame

	if s.scale > 1 {
		scaled, err := frame.Scale(s.scale)
		if err != nil {
			return Entry{}, errors.Join(ErrWritingFrameFailed, err)
		}

		frame = scaled
	}

	entry := Entry{
		Index:     s.next,
		File:      fmt.Sprintf("frame_%06d.png", s.next),
		Timestamp: snapshot.Timestamp.UTC(),
		Width:     frame.Width(),
		Height:    frame.Height(),
	}

	if err := WriteFile(filepath.Join(s.dir, entry.File), frame); err != nil {
		return Entry{}, errors.Join(ErrWritingFrameFailed, err)
	}

	if err := s.encoder.Encode(entry); err != nil {
		return Entry{}, errors.Join(ErrWritingFrameFailed, err)
	}

	s.next++

	return entry, nil
}

// Count returns the number of frames written.
func (s *Sink) Count() int {
	return s.next
}

// Close flushes and closes the manifest.
func (s *Sink) Close() error {
	return errors.Join(s.manifest.Sync(), s.manifest.Close())
}

// WriteFile encodes frame as a PNG file at path.
func WriteFile(path string, frame timelapse.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	buffered := bufio.NewWriter(file)

	if err := timelapse.EncodeFrame(buffered, frame); err != nil {
		_ = file.Close()
		return err
	}

	return errors.Join(buffered.Flush(), file.Close())
}

// ReadManifest decodes all entries of a manifest.
func ReadManifest(r io.Reader) ([]Entry, error) {
	decoder := jsoniter.ConfigFastest.NewDecoder(r)
	entries := make([]Entry, 0)

	for decoder.More() {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			return nil, errors.Join(ErrReadingManifest, err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
