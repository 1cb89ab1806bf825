package recognition

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/Kagami/go-face"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		d1       Descriptor
		d2       Descriptor
		expected float64
	}{
		{
			name:     "identical",
			d1:       Descriptor{1, 2, 3},
			d2:       Descriptor{1, 2, 3},
			expected: 0.0,
		},
		{
			name:     "different",
			d1:       Descriptor{1, 2, 3},
			d2:       Descriptor{4, 6, 8},
			expected: math.Sqrt(50), // 3^2 + 4^2 + 5^2
		},
		{
			name:     "symmetric",
			d1:       Descriptor{4, 6, 8},
			d2:       Descriptor{1, 2, 3},
			expected: math.Sqrt(50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist := EuclideanDistance(tt.d1, tt.d2)
			if math.Abs(dist-tt.expected) > 1e-6 {
				t.Errorf("expected %f, got %f", tt.expected, dist)
			}
		})
	}
}

func TestRectangleBox(t *testing.T) {
	r := Rectangle{X: 10, Y: 20, Width: 30, Height: 40}
	want := [4]int{20, 40, 60, 10}
	if got := r.Box(); got != want {
		t.Errorf("Box() = %v, want %v", got, want)
	}
}

func TestLoadModels(t *testing.T) {
	r := NewDlibExtractor()
	calls := 0
	r.factory = func(path string) (FaceEngine, error) {
		calls++
		return &MockFaceEngine{}, nil
	}

	if err := r.LoadModels("/tmp/models"); err != nil {
		t.Fatalf("LoadModels failed: %v", err)
	}
	if !r.IsLoaded() {
		t.Error("expected loaded to be true")
	}

	// Second load is a no-op.
	if err := r.LoadModels("/tmp/models"); err != nil {
		t.Errorf("LoadModels failed on second call: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected factory to be called once, got %d", calls)
	}
}

func TestLoadModels_Failure(t *testing.T) {
	r := NewDlibExtractor()
	r.factory = func(path string) (FaceEngine, error) {
		return nil, errors.New("load failed")
	}

	if err := r.LoadModels("/tmp/models"); err == nil {
		t.Error("expected LoadModels to fail")
	}
	if r.IsLoaded() {
		t.Error("expected loaded to be false")
	}
}

func TestDetectAndEncode(t *testing.T) {
	r := loadedExtractor(&MockFaceEngine{
		RecognizeFunc: func(data []byte) ([]face.Face, error) {
			return []face.Face{
				{Rectangle: image.Rect(0, 0, 100, 120), Descriptor: face.Descriptor{1, 2, 3}},
				{Rectangle: image.Rect(200, 50, 260, 110), Descriptor: face.Descriptor{4, 5, 6}},
			}, nil
		},
	})

	faces, err := r.DetectAndEncode([]byte("image"))
	if err != nil {
		t.Fatalf("DetectAndEncode failed: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(faces))
	}
	if faces[0].BoundingBox.Width != 100 || faces[0].BoundingBox.Height != 120 {
		t.Errorf("unexpected first box: %+v", faces[0].BoundingBox)
	}
	if faces[1].BoundingBox.X != 200 || faces[1].Descriptor[0] != 4 {
		t.Errorf("faces not returned in detector order: %+v", faces[1])
	}
}

func TestDetectAndEncode_NoFaceIsNotAnError(t *testing.T) {
	r := loadedExtractor(&MockFaceEngine{
		RecognizeFunc: func(data []byte) ([]face.Face, error) {
			return []face.Face{}, nil
		},
	})

	faces, err := r.DetectAndEncode([]byte("image"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("expected no faces, got %d", len(faces))
	}
}

func TestDetectAndEncode_UsesCNN(t *testing.T) {
	usedCNN := false
	r := loadedExtractor(&MockFaceEngine{
		RecognizeCNNFunc: func(data []byte) ([]face.Face, error) {
			usedCNN = true
			return nil, nil
		},
	})
	r.SetUseCNN(true)

	if _, err := r.DetectAndEncode([]byte("image")); err != nil {
		t.Fatalf("DetectAndEncode failed: %v", err)
	}
	if !usedCNN {
		t.Error("expected CNN detector to be used")
	}
}

func TestDetectAndEncode_NotLoaded(t *testing.T) {
	r := NewDlibExtractor()
	_, err := r.DetectAndEncode([]byte("image"))
	if !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestDetectAndEncode_EngineError(t *testing.T) {
	r := loadedExtractor(&MockFaceEngine{
		RecognizeFunc: func(data []byte) ([]face.Face, error) {
			return nil, errors.New("engine error")
		},
	})

	if _, err := r.DetectAndEncode([]byte("image")); err == nil {
		t.Error("expected error")
	}
}

func TestFirstFace(t *testing.T) {
	t.Run("multiple faces uses the first", func(t *testing.T) {
		ex := stubExtractor{faces: []Face{
			{Descriptor: Descriptor{1}},
			{Descriptor: Descriptor{2}},
		}}
		f, err := FirstFace(ex, nil)
		if err != nil {
			t.Fatalf("FirstFace failed: %v", err)
		}
		if f.Descriptor[0] != 1 {
			t.Errorf("expected first face, got %v", f.Descriptor[0])
		}
	})

	t.Run("no face", func(t *testing.T) {
		_, err := FirstFace(stubExtractor{}, nil)
		if !errors.Is(err, ErrNoFaceDetected) {
			t.Errorf("expected ErrNoFaceDetected, got %v", err)
		}
	})

	t.Run("extractor error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := FirstFace(stubExtractor{err: boom}, nil)
		if !errors.Is(err, boom) {
			t.Errorf("expected extractor error, got %v", err)
		}
	})
}

func TestClose(t *testing.T) {
	closed := false
	r := loadedExtractor(&MockFaceEngine{
		CloseFunc: func() { closed = true },
	})

	if err := r.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !closed {
		t.Error("expected engine to be closed")
	}
	if r.IsLoaded() {
		t.Error("expected loaded to be false")
	}
}
