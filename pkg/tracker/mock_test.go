package tracker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/storage"
)

// MockExtractor implements recognition.Extractor for testing.
type MockExtractor struct {
	DetectFunc func(data []byte) ([]recognition.Face, error)
	calls      atomic.Int32
}

func (m *MockExtractor) DetectAndEncode(data []byte) ([]recognition.Face, error) {
	m.calls.Add(1)
	if m.DetectFunc != nil {
		return m.DetectFunc(data)
	}
	return nil, nil
}

// MockSink implements storage.Sink, storage.Clearer and storage.NameDeleter.
type MockSink struct {
	mu         sync.Mutex
	rows       []storage.Row
	AppendErr  error
	ClearCalls int
	Deleted    []string
}

func (m *MockSink) Append(_ context.Context, row storage.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.rows = append(m.rows, row)
	return nil
}

func (m *MockSink) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	m.rows = nil
	return nil
}

func (m *MockSink) DeleteName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, name)
	kept := m.rows[:0]
	for _, row := range m.rows {
		if row.Name != name {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

func (m *MockSink) Rows() []storage.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Row(nil), m.rows...)
}

// MockLiveness implements LivenessChecker.
type MockLiveness struct {
	Live bool
	Err  error
}

func (m *MockLiveness) IsLive(context.Context, []byte) (bool, error) {
	return m.Live, m.Err
}

// facesOf returns an extractor that always reports the given descriptors.
func facesOf(descs ...recognition.Descriptor) *MockExtractor {
	return &MockExtractor{
		DetectFunc: func([]byte) ([]recognition.Face, error) {
			faces := make([]recognition.Face, len(descs))
			for i, d := range descs {
				faces[i] = recognition.Face{
					BoundingBox: recognition.Rectangle{X: 10 * i, Y: 5, Width: 20, Height: 30},
					Descriptor:  d,
				}
			}
			return faces, nil
		},
	}
}

func jpegBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 3), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
