package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte("frame-bytes")
	std := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "plain", payload: std},
		{name: "jpeg data url", payload: "data:image/jpeg;base64," + std},
		{name: "png data url", payload: "data:image/png;base64," + std},
		{name: "unpadded", payload: base64.RawStdEncoding.EncodeToString(raw)},
		{name: "surrounding whitespace", payload: "  " + std + "\n"},
		{name: "empty", payload: "", wantErr: true},
		{name: "garbage", payload: "not base64 at all!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrDecode) {
					t.Errorf("expected ErrDecode, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeBase64 failed: %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Errorf("got %q, want %q", got, raw)
			}
		})
	}
}

func TestPrepare_JPEGPassthrough(t *testing.T) {
	data := encodeJPEG(t, testImage(64, 48))

	f, err := Prepare(data, 640)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !bytes.Equal(f.JPEG, data) {
		t.Error("small JPEG should pass through unchanged")
	}
	if f.Width != 64 || f.Height != 48 || f.Scale != 1 {
		t.Errorf("unexpected frame: %dx%d scale %f", f.Width, f.Height, f.Scale)
	}
}

func TestPrepare_ConvertsPNG(t *testing.T) {
	f, err := Prepare(encodePNG(t, testImage(32, 32)), 0)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(f.JPEG)); err != nil || format != "jpeg" {
		t.Errorf("expected JPEG output, got %s (%v)", format, err)
	}
}

func TestPrepare_Downscales(t *testing.T) {
	f, err := Prepare(encodePNG(t, testImage(200, 100)), 50)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if f.Width != 50 || f.Height != 25 {
		t.Errorf("expected 50x25, got %dx%d", f.Width, f.Height)
	}
	if f.Scale != 4 {
		t.Errorf("expected scale 4, got %f", f.Scale)
	}

	x, y, w, h := f.ScaleRect(10, 5, 10, 10)
	if x != 40 || y != 20 || w != 40 || h != 40 {
		t.Errorf("ScaleRect = %d,%d,%d,%d", x, y, w, h)
	}
}

func TestPrepare_Invalid(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Prepare(data, 0); !errors.Is(err, ErrDecode) {
				t.Errorf("expected ErrDecode, got %v", err)
			}
		})
	}
}
