// Package imaging turns uploaded frames into JPEG data the face detector accepts.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when a payload is not a decodable image.
var ErrDecode = errors.New("could not decode image")

// JPEGQuality is used when frames are re-encoded.
const JPEGQuality = 90

var dataURLPrefix = regexp.MustCompile(`^data:image/[\w.+-]+;base64,`)

// Frame is a decoded image ready for detection.
type Frame struct {
	JPEG   []byte
	Width  int
	Height int
	// Scale maps coordinates in JPEG back to the uploaded image.
	Scale float64
}

// DecodeBase64 strips an optional data URL prefix and decodes the payload.
func DecodeBase64(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	payload = dataURLPrefix.ReplaceAllString(payload, "")

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(payload); err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("%w: invalid base64", ErrDecode)
}

// Prepare decodes raw image bytes, downscales frames wider than maxWidth
// (no limit when maxWidth is 0) and returns JPEG data. JPEG input that
// needs no resizing is passed through unchanged.
func Prepare(data []byte, maxWidth int) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}

	if maxWidth <= 0 || width <= maxWidth {
		if format == "jpeg" {
			return &Frame{JPEG: data, Width: width, Height: height, Scale: 1}, nil
		}
		out, err := encode(img)
		if err != nil {
			return nil, err
		}
		return &Frame{JPEG: out, Width: width, Height: height, Scale: 1}, nil
	}

	newWidth := maxWidth
	newHeight := int(float64(height) * float64(maxWidth) / float64(width))
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	out, err := encode(resized)
	if err != nil {
		return nil, err
	}
	return &Frame{
		JPEG:   out,
		Width:  newWidth,
		Height: newHeight,
		Scale:  float64(width) / float64(newWidth),
	}, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaleRect maps r from frame coordinates back to the uploaded image.
func (f *Frame) ScaleRect(x, y, w, h int) (int, int, int, int) {
	if f.Scale == 1 || f.Scale == 0 {
		return x, y, w, h
	}
	s := f.Scale
	return int(float64(x) * s), int(float64(y) * s), int(float64(w) * s), int(float64(h) * s)
}
