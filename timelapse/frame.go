package timelapse

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

const bytesPerPixel = 3

// Frame is an immutable RGB image. It implements image.Image.
type Frame struct {
	width  int
	height int
	pix    []byte
}

// NewFrame builds a Frame from tightly packed RGB rows. The pixel slice is copied.
func NewFrame(width, height int, pix []byte) (Frame, error) {
	if width < 0 || height < 0 {
		return Frame{}, fmt.Errorf("negative frame size %dx%d", width, height)
	}

	if len(pix) != width*height*bytesPerPixel {
		return Frame{}, fmt.Errorf("frame %dx%d needs %d bytes, got %d", width, height, width*height*bytesPerPixel, len(pix))
	}

	owned := make([]byte, len(pix))
	copy(owned, pix)

	return Frame{width: width, height: height, pix: owned}, nil
}

// BlankFrame builds a frame filled with a single color.
func BlankFrame(width, height int, c Color) Frame {
	pix := make([]byte, width*height*bytesPerPixel)
	fillColor(pix, c)

	return Frame{width: width, height: height, pix: pix}
}

func (f Frame) Width() int {
	return f.width
}

func (f Frame) Height() int {
	return f.height
}

// IsEmpty reports whether the frame has no pixels.
func (f Frame) IsEmpty() bool {
	return f.width == 0 || f.height == 0
}

// ColorAt returns the color of a pixel. Coordinates outside the frame yield the zero Color.
func (f Frame) ColorAt(x, y int) Color {
	if x < 0 || y < 0 || x >= f.width || y >= f.height {
		return Color{}
	}

	i := (y*f.width + x) * bytesPerPixel

	return Color{R: f.pix[i], G: f.pix[i+1], B: f.pix[i+2]}
}

// Pix returns a copy of the packed RGB rows.
func (f Frame) Pix() []byte {
	pix := make([]byte, len(f.pix))
	copy(pix, f.pix)

	return pix
}

// Equal reports whether both frames have the same size and identical pixels.
func (f Frame) Equal(other Frame) bool {
	if f.width != other.width || f.height != other.height {
		return false
	}

	for i := range f.pix {
		if f.pix[i] != other.pix[i] {
			return false
		}
	}

	return true
}

func (f Frame) ColorModel() color.Model {
	return color.RGBAModel
}

func (f Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.width, f.height)
}

func (f Frame) At(x, y int) color.Color {
	c := f.ColorAt(x, y)

	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
}

// Scale enlarges the frame by an integer factor using nearest-neighbour sampling.
func (f Frame) Scale(factor int) (Frame, error) {
	if factor < 1 {
		return Frame{}, errors.Join(ErrInvalidScale, fmt.Errorf("got %d", factor))
	}

	if factor == 1 {
		return f, nil
	}

	width, height := f.width*factor, f.height*factor
	pix := make([]byte, width*height*bytesPerPixel)
	rowLen := width * bytesPerPixel

	for y := 0; y < f.height; y++ {
		row := pix[y*factor*rowLen : (y*factor+1)*rowLen]

		for x := 0; x < f.width; x++ {
			src := f.pix[(y*f.width+x)*bytesPerPixel : (y*f.width+x+1)*bytesPerPixel]

			for k := 0; k < factor; k++ {
				copy(row[(x*factor+k)*bytesPerPixel:], src)
			}
		}

		for k := 1; k < factor; k++ {
			copy(pix[(y*factor+k)*rowLen:(y*factor+k+1)*rowLen], row)
		}
	}

	return Frame{width: width, height: height, pix: pix}, nil
}

// Canvas is the mutable working buffer of a Reconstructor. It is not safe for concurrent use.
type Canvas struct {
	width  int
	height int
	pix    []byte
}

// NewCanvas allocates a canvas filled with the background color.
func NewCanvas(width, height int, background Color) *Canvas {
	pix := make([]byte, width*height*bytesPerPixel)
	fillColor(pix, background)

	return &Canvas{width: width, height: height, pix: pix}
}

func (c *Canvas) Width() int {
	return c.width
}

func (c *Canvas) Height() int {
	return c.height
}

// Fill paints the whole canvas.
func (c *Canvas) Fill(col Color) {
	fillColor(c.pix, col)
}

// FillRect paints [x, x+width) x [y, y+height), clipped to the canvas.
// It reports whether any part of the rectangle fell outside the canvas.
func (c *Canvas) FillRect(x, y, width, height int, col Color) bool {
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+width, c.width), min(y+height, c.height)

	clipped := x0 != x || y0 != y || x1 != x+width || y1 != y+height

	if x0 >= x1 || y0 >= y1 {
		return clipped || width <= 0 || height <= 0
	}

	for row := y0; row < y1; row++ {
		line := c.pix[(row*c.width+x0)*bytesPerPixel : (row*c.width+x1)*bytesPerPixel]
		fillColor(line, col)
	}

	return clipped
}

// Draw copies the frame onto the top-left corner of the canvas. Pixels outside the canvas are dropped.
func (c *Canvas) Draw(f Frame) {
	width, height := min(f.width, c.width), min(f.height, c.height)

	for row := 0; row < height; row++ {
		copy(
			c.pix[row*c.width*bytesPerPixel:(row*c.width+width)*bytesPerPixel],
			f.pix[row*f.width*bytesPerPixel:(row*f.width+width)*bytesPerPixel],
		)
	}
}

// Frame copies the top-left width x height region into a new Frame.
// The region is clipped to the canvas, so the result never aliases the canvas buffer.
func (c *Canvas) Frame(width, height int) Frame {
	width, height = max(min(width, c.width), 0), max(min(height, c.height), 0)
	pix := make([]byte, width*height*bytesPerPixel)
	rowLen := width * bytesPerPixel

	for row := 0; row < height; row++ {
		copy(pix[row*rowLen:(row+1)*rowLen], c.pix[row*c.width*bytesPerPixel:])
	}

	return Frame{width: width, height: height, pix: pix}
}

func fillColor(pix []byte, c Color) {
	if len(pix) < bytesPerPixel {
		return
	}

	pix[0], pix[1], pix[2] = c.R, c.G, c.B

	// doubling copy
	for filled := bytesPerPixel; filled < len(pix); filled *= 2 {
		copy(pix[filled:], pix[:filled])
	}
}
