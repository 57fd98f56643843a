package main

import (
	"os"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
