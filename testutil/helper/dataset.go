package helper

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/ingest"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

const (
	syntheticUsers          = 1000
	syntheticRectangleEvery = 1000
	syntheticTimestamp      = "2006-01-02 15:04:05.000 UTC"
)

var syntheticPalette = []string{
	"#FF4500", "#FFA800", "#FFD635", "#00A368", "#7EED56", "#2450A4",
	"#3690EA", "#51E9F4", "#811E9F", "#B44AC0", "#FF99AA", "#9C6926",
	"#000000", "#898D90", "#D4D7D9", "#FFFFFF",
}

// SyntheticDataset describes generated dataset files in the raw feed format.
type SyntheticDataset struct {
	Files             int
	PlacementsPerFile int
	Seed              uint64
	MaxStep           time.Duration
}

// WriteSyntheticDataset writes inputs_00.csv.gzip .. into dir. Placements start at the first
// canvas epoch, ascend in time and stay inside the canvas valid at their instant.
// Every 1000th placement is a rectangle.
func WriteSyntheticDataset(dir string, dataset SyntheticDataset) (int, error) {
	if dataset.Files < 1 || dataset.Files > ingest.LastSegment+1 {
		return 0, fmt.Errorf("files must be between 1 and %d", ingest.LastSegment+1)
	}

	if dataset.MaxStep <= 0 {
		dataset.MaxStep = time.Second
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	random := rand.New(rand.NewPCG(dataset.Seed, dataset.Seed))
	geometry := timelapse.DefaultGeometryTimeline()
	clock := geometry.Start()
	users := syntheticUserIDs(random)
	written := 0

	for n := range dataset.Files {
		path, err := ingest.SegmentPath(dir, n)
		if err != nil {
			return written, err
		}

		count, err := writeSyntheticFile(path, dataset, random, geometry, users, &clock, written)
		written += count

		if err != nil {
			return written, err
		}
	}

	return written, nil
}

func writeSyntheticFile(
	path string,
	dataset SyntheticDataset,
	random *rand.Rand,
	geometry timelapse.GeometryTimeline,
	users []string,
	clock *time.Time,
	offset int,
) (written int, err error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	compressed := gzip.NewWriter(file)
	writer := csv.NewWriter(compressed)

	defer func() {
		writer.Flush()
		err = errors.Join(err, writer.Error(), compressed.Close(), file.Close())
	}()

	if err := writer.Write([]string{"timestamp", "user_id", "pixel_color", "coordinate"}); err != nil {
		return 0, err
	}

	for range dataset.PlacementsPerFile {
		*clock = clock.Add(time.Duration(random.Int64N(int64(dataset.MaxStep))) + time.Millisecond)
		epoch := geometry.At(*clock)

		record := []string{
			clock.Format(syntheticTimestamp),
			users[random.IntN(len(users))],
			syntheticPalette[random.IntN(len(syntheticPalette))],
			syntheticCoordinate(random, epoch, (offset+written+1)%syntheticRectangleEvery == 0),
		}

		if err := writer.Write(record); err != nil {
			return written, err
		}

		written++
	}

	return written, nil
}

func syntheticCoordinate(random *rand.Rand, epoch timelapse.GeometryEpoch, rectangle bool) string {
	if !rectangle {
		return strconv.Itoa(random.IntN(epoch.Width)) + "," + strconv.Itoa(random.IntN(epoch.Height))
	}

	x, y := random.IntN(epoch.Width-16), random.IntN(epoch.Height-16)

	return fmt.Sprintf("%d,%d,%d,%d", x, y, x+1+random.IntN(15), y+1+random.IntN(15))
}

func syntheticUserIDs(random *rand.Rand) []string {
	users := make([]string, syntheticUsers)
	hash := make([]byte, 64)

	for i := range users {
		for j := range hash {
			hash[j] = byte(random.UintN(256))
		}

		users[i] = base64.StdEncoding.EncodeToString(hash)
	}

	return users
}
