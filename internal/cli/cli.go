package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Schema     *SchemaCommand
	Views      *ViewsCommand
	Import     *ImportCommand
	Range      *RangeCommand
	Count      *CountCommand
	Timestamps *TimestampsCommand
	Keyframes  *KeyframesCommand
	Render     *RenderCommand
	Snapshot   *SnapshotCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string, out io.Writer) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "timelapse"
	parser.LongDescription = "Imports the r/place 2022 placement log into PostgreSQL and renders timelapse frames from it."

	base := command{globals: &globals, version: version, out: out}

	cmds := &commands{
		Schema:     &SchemaCommand{command: base},
		Views:      &ViewsCommand{command: base},
		Import:     &ImportCommand{command: base},
		Range:      &RangeCommand{command: base},
		Count:      &CountCommand{command: base},
		Timestamps: &TimestampsCommand{command: base},
		Keyframes:  &KeyframesCommand{command: base},
		Render:     &RenderCommand{command: base},
		Snapshot:   &SnapshotCommand{command: base},
	}

	parser.AddCommand("schema", "Create the placement and keyframe tables", "Create the placement and keyframe tables if they do not exist.", cmds.Schema)
	parser.AddCommand("views", "Create or refresh one materialized view per segment", "Create one materialized view per partition catalog segment, with a timestamp index, and refresh existing ones.", cmds.Views)
	parser.AddCommand("import", "Import dataset files into the placement table", "Read gzip CSV dataset files and bulk import their placements.", cmds.Import)
	parser.AddCommand("range", "Show the first and last placement timestamp", "Scan the placement table and print the timestamp range it covers.", cmds.Range)
	parser.AddCommand("count", "Count stored placements", "Print the number of rows in the placement table.", cmds.Count)
	parser.AddCommand("timestamps", "List the instants a render would emit", "List the frame instants of a window and interval without touching storage.", cmds.Timestamps)
	parser.AddCommand("keyframes", "Generate keyframes", "Replay a window at the keyframe interval and store every frame as a keyframe.", cmds.Keyframes)
	parser.AddCommand("render", "Render timelapse frames", "Replay a window and write one PNG per interval plus a manifest.", cmds.Render)
	parser.AddCommand("snapshot", "Render the canvas at one instant", "Write a single PNG showing the canvas at the given instant.", cmds.Snapshot)

	return parser, &globals, cmds
}

// Run is the main entry point for the timelapse CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	return run(version, args, os.Stdout)
}

func run(version string, args []string, out io.Writer) error {
	// go-flags requires a subcommand, --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}

	for _, arg := range checkArgs {
		if arg == "--version" {
			_, _ = fmt.Fprintf(out, "timelapse %s\n", version)
			return nil
		}

		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version, out)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			return nil
		}

		return err
	}

	return nil
}
