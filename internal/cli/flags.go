package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config      string `long:"config" description:"Path to config file" default:""`
	JSON        bool   `long:"json" description:"Output in JSON format"`
	Verbose     bool   `long:"verbose" description:"Enable debug logging"`
	MetricsAddr string `long:"metrics-addr" description:"Serve Prometheus metrics on this address while the command runs"`
	Version     bool   `long:"version" description:"Show version and exit"`
}

// command carries what every subcommand shares.
type command struct {
	globals *GlobalFlags
	version string
	out     io.Writer
}

// SchemaCommand creates the placement and keyframe tables.
type SchemaCommand struct {
	command
}

// ViewsCommand creates or refreshes the per-segment materialized views.
type ViewsCommand struct {
	command
}

// ImportCommand bulk imports dataset files.
type ImportCommand struct {
	Dir           string `long:"dir" description:"Dataset directory, overrides dataset.dir"`
	Segments      []int  `long:"segment" description:"Dataset file number to import (repeatable, default all)"`
	SkipMalformed bool   `long:"skip-malformed" description:"Log and skip malformed records instead of failing"`
	RefreshViews  bool   `long:"refresh-views" description:"Create or refresh the segment views after the import"`

	command
}

// RangeCommand prints the timestamp range of the placement table.
type RangeCommand struct {
	command
}

// CountCommand prints the number of stored placements.
type CountCommand struct {
	command
}

// TimestampsCommand lists the frame instants of a window.
type TimestampsCommand struct {
	windowFlags

	Leading bool `long:"leading" description:"Also emit a frame at the window start"`

	command
}

// KeyframesCommand generates keyframes at a coarse cadence.
type KeyframesCommand struct {
	windowFlags

	command
}

// RenderCommand renders a timelapse to numbered PNG files.
type RenderCommand struct {
	windowFlags

	Scale     int    `long:"scale" description:"Integer upscaling factor, overrides render.scale"`
	Out       string `long:"out" description:"Output directory, overrides render.output_dir"`
	FixedSize bool   `long:"fixed-size" description:"Use the window end canvas size for every frame"`
	Leading   bool   `long:"leading" description:"Also emit a frame at the window start"`

	command
}

// SnapshotCommand renders the canvas at one instant.
type SnapshotCommand struct {
	At    string `long:"at" description:"Instant to render (RFC 3339)" required:"true"`
	Out   string `long:"out" description:"PNG file to write" default:"snapshot.png"`
	Scale int    `long:"scale" description:"Integer upscaling factor" default:"1"`

	command
}

// windowFlags select the replayed window. Unset values fall back to the config file
// and then to the stored placement range.
type windowFlags struct {
	Start    string `long:"start" description:"Window start (RFC 3339)"`
	End      string `long:"end" description:"Window end (RFC 3339)"`
	Interval string `long:"interval" description:"Frame interval, e.g. 30s or 5m"`
}
