package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

const (
	columnTimestamp  = "timestamp"
	columnUserID     = "user_id"
	columnPixelColor = "pixel_color"
	columnCoordinate = "coordinate"

	// fractional seconds after the seconds field are accepted by time.Parse without being in the layout
	timestampLayout = "2006-01-02 15:04:05 UTC"
)

var (
	ErrMissingColumn     = errors.New("required column is missing from header")
	ErrMalformedRecord   = errors.New("malformed placement record")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// columns holds the position of every required column in a record.
type columns struct {
	timestamp, userID, pixelColor, coordinate int
}

func columnsFromHeader(header []string) (columns, error) {
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	lookup := func(name string) (int, error) {
		i, ok := positions[name]
		if !ok {
			return 0, errors.Join(ErrMissingColumn, errors.New(name))
		}

		return i, nil
	}

	var (
		c    columns
		errs []error
		err  error
	)

	c.timestamp, err = lookup(columnTimestamp)
	errs = append(errs, err)
	c.userID, err = lookup(columnUserID)
	errs = append(errs, err)
	c.pixelColor, err = lookup(columnPixelColor)
	errs = append(errs, err)
	c.coordinate, err = lookup(columnCoordinate)
	errs = append(errs, err)

	return c, errors.Join(errs...)
}

// ParseTimestamp parses a dataset timestamp like "2022-04-04 00:53:51.577 UTC".
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.Join(ErrInvalidTimestamp, err)
	}

	return t.UTC(), nil
}

// ParseCoordinate parses "x,y" into a 1x1 rectangle or "x1,y1,x2,y2" into the rectangle spanning both corners.
func ParseCoordinate(s string) (x, y, width, height int16, err error) {
	components := strings.Split(s, ",")
	if len(components) != 2 && len(components) != 4 {
		return 0, 0, 0, 0, errors.Join(ErrInvalidCoordinate, fmt.Errorf("expected 2 or 4 components in %q", s))
	}

	values := make([]int16, len(components))
	for i, component := range components {
		v, parseErr := strconv.ParseInt(strings.TrimSpace(component), 10, 16)
		if parseErr != nil {
			return 0, 0, 0, 0, errors.Join(ErrInvalidCoordinate, parseErr)
		}

		values[i] = int16(v)
	}

	if len(values) == 2 {
		return values[0], values[1], 1, 1, nil
	}

	width, height = values[2]-values[0]+1, values[3]-values[1]+1
	if width < 1 || height < 1 {
		return 0, 0, 0, 0, errors.Join(ErrInvalidCoordinate, fmt.Errorf("inverted rectangle %q", s))
	}

	return values[0], values[1], width, height, nil
}

// parse converts one CSV record into a placement.
func (c columns) parse(record []string) (timelapse.PlacementEvent, error) {
	if len(record) <= max(c.timestamp, c.userID, c.pixelColor, c.coordinate) {
		return timelapse.PlacementEvent{}, fmt.Errorf("expected at least %d fields, got %d", max(c.timestamp, c.userID, c.pixelColor, c.coordinate)+1, len(record))
	}

	timestamp, err := ParseTimestamp(record[c.timestamp])
	if err != nil {
		return timelapse.PlacementEvent{}, err
	}

	actorHash, err := base64.StdEncoding.DecodeString(strings.TrimSpace(record[c.userID]))
	if err != nil {
		return timelapse.PlacementEvent{}, errors.Join(ErrInvalidUserID, err)
	}

	color, err := timelapse.ParseHexColor(record[c.pixelColor])
	if err != nil {
		return timelapse.PlacementEvent{}, err
	}

	x, y, width, height, err := ParseCoordinate(record[c.coordinate])
	if err != nil {
		return timelapse.PlacementEvent{}, err
	}

	return timelapse.BuildRectanglePlacementEvent(timestamp, x, y, width, height, color, actorHash), nil
}
