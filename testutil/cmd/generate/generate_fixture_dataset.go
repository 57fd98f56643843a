package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/helper"
)

const (
	thousand = 1000
	million  = thousand * thousand

	// NumFiles - Number of dataset files to create - adapt as needed.
	NumFiles = 4

	// PlacementsPerFile - adapt as needed.
	//
	// WARNING
	//
	// One million placements are roughly 120MB of uncompressed CSV per file.
	PlacementsPerFile = 1 * million

	// MaxStep is the largest gap between two consecutive placements.
	MaxStep = 5 * time.Millisecond

	Seed = 2022

	OutputDir = "testutil/fixtures/dataset" // The directory to put the dataset files into - should be fine as is.
)

func main() {
	projectRoot, err := findProjectRoot()
	if err != nil {
		panic(fmt.Sprintf("failed to find project root: %v\n", err))
	}

	outputDir := filepath.Join(projectRoot, OutputDir)

	written, err := helper.WriteSyntheticDataset(outputDir, helper.SyntheticDataset{
		Files:             NumFiles,
		PlacementsPerFile: PlacementsPerFile,
		Seed:              Seed,
		MaxStep:           MaxStep,
	})
	if err != nil {
		panic(fmt.Sprintf("Error generating dataset: %v\n", err))
	}

	fmt.Printf("Successfully generated %d placements in %d files in %s\n", written, NumFiles, outputDir)
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree looking for go.mod
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return "", fmt.Errorf("could not find project root (no go.mod found)")
}
