package timelapse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Color is an opaque 24-bit RGB color.
type Color struct {
	R, G, B uint8
}

// White is the background color of the canvas.
var White = Color{R: 0xFF, G: 0xFF, B: 0xFF}

// ColorFromARGB unpacks a color stored as a packed 32-bit integer. The alpha byte is discarded.
func ColorFromARGB(packed int32) Color {
	v := uint32(packed)

	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}
}

// ARGB packs the color into a 32-bit integer with an opaque alpha byte.
func (c Color) ARGB() int32 {
	return int32(0xFF<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B))
}

// ParseHexColor parses "#RRGGBB" or "#RRGGBBAA". The leading '#' is optional, alpha is dropped.
func ParseHexColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, errors.Join(ErrInvalidColor, fmt.Errorf("unexpected length in %q", s))
	}

	v, err := strconv.ParseUint(hex[:6], 16, 32)
	if err != nil {
		return Color{}, errors.Join(ErrInvalidColor, err)
	}

	if len(hex) == 8 {
		if _, err := strconv.ParseUint(hex[6:], 16, 8); err != nil {
			return Color{}, errors.Join(ErrInvalidColor, err)
		}
	}

	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// PlacementEvent is one rectangular write of a single color onto the canvas.
// Single pixel placements have Width and Height of 1.
type PlacementEvent struct {
	Timestamp time.Time
	X         int16
	Y         int16
	Width     int16
	Height    int16
	Color     Color
	ActorHash []byte
}

// BuildPlacementEvent is a factory method for single pixel placements.
func BuildPlacementEvent(timestamp time.Time, x, y int16, color Color, actorHash []byte) PlacementEvent {
	return PlacementEvent{
		Timestamp: timestamp,
		X:         x,
		Y:         y,
		Width:     1,
		Height:    1,
		Color:     color,
		ActorHash: actorHash,
	}
}

// BuildRectanglePlacementEvent is a factory method for rectangle placements (moderation overwrites).
func BuildRectanglePlacementEvent(
	timestamp time.Time,
	x, y, width, height int16,
	color Color,
	actorHash []byte,
) PlacementEvent {
	return PlacementEvent{
		Timestamp: timestamp,
		X:         x,
		Y:         y,
		Width:     width,
		Height:    height,
		Color:     color,
		ActorHash: actorHash,
	}
}

// IsRectangle reports whether the event writes more than one pixel.
func (e PlacementEvent) IsRectangle() bool {
	return e.Width > 1 || e.Height > 1
}
