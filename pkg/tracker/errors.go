package tracker

import (
	"errors"

	"github.com/MrCodeEU/facetrack/pkg/imaging"
	"github.com/MrCodeEU/facetrack/pkg/recognition"
	"github.com/MrCodeEU/facetrack/pkg/roster"
)

// ErrorCode identifies a class of tracker failure.
type ErrorCode string

const (
	ErrCodeNoFace      ErrorCode = "NO_FACE"
	ErrCodeDecode      ErrorCode = "DECODE_FAILED"
	ErrCodeInvalidName ErrorCode = "INVALID_NAME"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeNotLive     ErrorCode = "NOT_LIVE"
	ErrCodeInternal    ErrorCode = "INTERNAL"
)

// Error is a structured tracker error carrying a user-facing message.
type Error struct {
	Code    ErrorCode
	Message string
	Retry   bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// User-friendly error messages
var errorMessages = map[ErrorCode]string{
	ErrCodeNoFace:      "No face detected. Please position your face in front of the camera",
	ErrCodeDecode:      "Could not decode image",
	ErrCodeInvalidName: "Invalid name",
	ErrCodeNotFound:    "Not found",
	ErrCodeNotLive:     "Liveness check failed. Please try again",
	ErrCodeInternal:    "Internal error",
}

// GetErrorMessage returns a user-friendly message for an error code.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Request failed"
}

// NewError creates a structured error for code wrapping err.
func NewError(code ErrorCode, err error) *Error {
	return &Error{
		Code:    code,
		Message: GetErrorMessage(code),
		Retry:   code == ErrCodeNoFace || code == ErrCodeNotLive,
		Err:     err,
	}
}

// Classify maps err onto the tracker error taxonomy. Errors that are
// already *Error are returned as is; anything unrecognised is internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, recognition.ErrNoFaceDetected):
		return NewError(ErrCodeNoFace, err)
	case errors.Is(err, imaging.ErrDecode):
		return NewError(ErrCodeDecode, err)
	case errors.Is(err, roster.ErrInvalidName):
		return NewError(ErrCodeInvalidName, err)
	default:
		return NewError(ErrCodeInternal, err)
	}
}
