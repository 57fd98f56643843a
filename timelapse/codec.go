package timelapse

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
)

var ErrEncodingFrameFailed = errors.New("encoding frame failed")
var ErrDecodingFrameFailed = errors.New("decoding frame failed")

// EncodeFrame writes the frame as an opaque PNG image.
func EncodeFrame(w io.Writer, f Frame) error {
	img := image.NewNRGBA(f.Bounds())

	for i, j := 0, 0; i < len(f.pix); i, j = i+bytesPerPixel, j+4 {
		img.Pix[j] = f.pix[i]
		img.Pix[j+1] = f.pix[i+1]
		img.Pix[j+2] = f.pix[i+2]
		img.Pix[j+3] = 0xFF
	}

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(w, img); err != nil {
		return errors.Join(ErrEncodingFrameFailed, err)
	}

	return nil
}

// EncodeFrameBytes is EncodeFrame into a byte slice.
func EncodeFrameBytes(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeFrame(&buf, f); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeFrame reads a PNG image into a Frame. Transparency is discarded.
func DecodeFrame(r io.Reader) (Frame, error) {
	img, err := png.Decode(r)
	if err != nil {
		return Frame{}, errors.Join(ErrDecodingFrameFailed, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pix := make([]byte, width*height*bytesPerPixel)

	var rgbaPix []byte
	var stride int

	switch typed := img.(type) {
	case *image.NRGBA:
		rgbaPix, stride = typed.Pix, typed.Stride
	case *image.RGBA:
		if typed.Opaque() {
			rgbaPix, stride = typed.Pix, typed.Stride
		}
	}

	if rgbaPix != nil {
		for y := 0; y < height; y++ {
			src := rgbaPix[y*stride:]
			dst := pix[y*width*bytesPerPixel:]

			for x := 0; x < width; x++ {
				dst[x*bytesPerPixel] = src[x*4]
				dst[x*bytesPerPixel+1] = src[x*4+1]
				dst[x*bytesPerPixel+2] = src[x*4+2]
			}
		}

		return Frame{width: width, height: height, pix: pix}, nil
	}

	i := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			pix[i], pix[i+1], pix[i+2] = uint8(r>>8), uint8(g>>8), uint8(b>>8)
			i += bytesPerPixel
		}
	}

	return Frame{width: width, height: height, pix: pix}, nil
}

// DecodeFrameBytes is DecodeFrame from a byte slice.
func DecodeFrameBytes(data []byte) (Frame, error) {
	return DecodeFrame(bytes.NewReader(data))
}
