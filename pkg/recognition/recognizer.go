// Package recognition provides face detection, descriptor extraction and
// identity matching. Detection and descriptors come from dlib via go-face.
package recognition

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/facetrack/pkg/logging"
)

// Descriptor is a 128-dimensional face descriptor from dlib.
type Descriptor = face.Descriptor

// Rectangle represents a bounding box.
type Rectangle struct {
	X, Y          int
	Width, Height int
}

// Box returns the rectangle as [top, right, bottom, left].
func (r Rectangle) Box() [4]int {
	return [4]int{r.Y, r.X + r.Width, r.Y + r.Height, r.X}
}

// Face represents a detected face in an image.
type Face struct {
	BoundingBox Rectangle
	Descriptor  Descriptor
}

// Extractor turns an image into the faces found in it, in detector order.
// An image without faces yields an empty slice and a nil error.
type Extractor interface {
	DetectAndEncode(imageData []byte) ([]Face, error)
}

// FaceEngine is the subset of go-face's Recognizer used here.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	RecognizeCNN(imgData []byte) ([]face.Face, error)
	Close()
}

// EngineFactory creates a FaceEngine from a model directory.
type EngineFactory func(modelPath string) (FaceEngine, error)

// ErrNoFaceDetected is returned when no face is found in the image.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrModelNotLoaded is returned when models are not loaded.
var ErrModelNotLoaded = errors.New("recognition models not loaded")

func defaultFactory(modelPath string) (FaceEngine, error) {
	rec, err := face.NewRecognizer(modelPath)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DlibExtractor implements Extractor using dlib via go-face.
type DlibExtractor struct {
	engine    FaceEngine
	factory   EngineFactory
	modelPath string
	useCNN    bool
	loaded    bool
	mu        sync.RWMutex
}

// NewDlibExtractor creates a new DlibExtractor. Models are loaded by LoadModels.
func NewDlibExtractor() *DlibExtractor {
	return &DlibExtractor{factory: defaultFactory}
}

// SetUseCNN switches detection to dlib's CNN detector, which needs
// mmod_human_face_detector.dat in the model directory.
func (r *DlibExtractor) SetUseCNN(useCNN bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useCNN = useCNN
}

// LoadModels loads the dlib models from the specified path.
// The path should contain:
// - shape_predictor_5_face_landmarks.dat
// - dlib_face_recognition_resnet_model_v1.dat
// - mmod_human_face_detector.dat (optional, for CNN detection)
func (r *DlibExtractor) LoadModels(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	logging.Infof("Loading face recognition models from: %s", modelPath)

	engine, err := r.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	r.engine = engine
	r.modelPath = modelPath
	r.loaded = true

	logging.Info("Face recognition models loaded successfully")
	return nil
}

// IsLoaded returns true if models are loaded.
func (r *DlibExtractor) IsLoaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Close releases the engine resources.
func (r *DlibExtractor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	r.loaded = false
	return nil
}

// DetectAndEncode detects all faces in a JPEG image and returns their
// bounding boxes and descriptors in detector order.
func (r *DlibExtractor) DetectAndEncode(imageData []byte) ([]Face, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.loaded {
		return nil, ErrModelNotLoaded
	}

	var (
		faces []face.Face
		err   error
	)
	if r.useCNN {
		faces, err = r.engine.RecognizeCNN(imageData)
	} else {
		faces, err = r.engine.Recognize(imageData)
	}
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	result := make([]Face, len(faces))
	for i, f := range faces {
		rect := f.Rectangle
		result[i] = Face{
			BoundingBox: Rectangle{
				X:      rect.Min.X,
				Y:      rect.Min.Y,
				Width:  rect.Dx(),
				Height: rect.Dy(),
			},
			Descriptor: f.Descriptor,
		}
	}

	logging.Debugf("Detected %d face(s) in image", len(result))
	return result, nil
}

// FirstFace runs the extractor and returns the first detected face.
// Returns ErrNoFaceDetected when the image contains no face.
func FirstFace(ex Extractor, imageData []byte) (*Face, error) {
	faces, err := ex.DetectAndEncode(imageData)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}
	if len(faces) > 1 {
		logging.Debugf("%d faces detected, using the first", len(faces))
	}
	return &faces[0], nil
}

// EuclideanDistance calculates the Euclidean distance between two descriptors.
func EuclideanDistance(d1, d2 Descriptor) float64 {
	var sum float64
	for i := range d1 {
		diff := float64(d1[i]) - float64(d2[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
