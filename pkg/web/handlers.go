package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/attendance"
	"github.com/MrCodeEU/facetrack/pkg/imaging"
	"github.com/MrCodeEU/facetrack/pkg/tracker"
	"github.com/go-chi/chi/v5"
)

// errInvalidRequestBody is a shared error message for invalid request bodies.
const errInvalidRequestBody = "invalid request body"

// defaultMultipartMemory is the in-memory budget for multipart uploads when
// no body limit is configured.
const defaultMultipartMemory = 32 << 20

type imageRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type errorResponse struct {
	Error string            `json:"error"`
	Code  tracker.ErrorCode `json:"code,omitempty"`
	Retry bool              `json:"retry,omitempty"`
}

type enrollResponse struct {
	Name       string    `json:"name"`
	EnrolledAt time.Time `json:"enrolled_at"`
	Message    string    `json:"message"`
}

type rosterResponse struct {
	Names   []string `json:"names"`
	Count   int      `json:"count"`
	Pending []string `json:"pending,omitempty"`
}

type attendanceResponse struct {
	Mode       string                        `json:"mode"`
	Attendance map[string][]attendance.Event `json:"attendance"`
}

type historyResponse struct {
	Name   string             `json:"name"`
	State  string             `json:"state"`
	Events []attendance.Event `json:"events"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// respondTrackerError maps a tracker error onto an HTTP status.
func respondTrackerError(w http.ResponseWriter, err error, noFaceStatus int) {
	te := tracker.Classify(err)
	status := http.StatusInternalServerError
	switch te.Code {
	case tracker.ErrCodeNoFace:
		status = noFaceStatus
	case tracker.ErrCodeDecode, tracker.ErrCodeInvalidName:
		status = http.StatusBadRequest
	case tracker.ErrCodeNotFound:
		status = http.StatusNotFound
	}
	respondJSON(w, status, errorResponse{Error: te.Message, Code: te.Code, Retry: te.Retry})
}

// readImage extracts the name and raw image bytes from a JSON body with a
// base64 image, a multipart form with an "image" file, or a raw image body.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (name string, data []byte, err error) {
	if s.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(s.multipartMemory()); err != nil {
			return "", nil, fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return "", nil, errors.New("no image data provided")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
		return r.FormValue("name"), data, nil

	case strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", errInvalidRequestBody, err)
		}
		return r.URL.Query().Get("name"), data, nil

	default:
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", nil, errors.New(errInvalidRequestBody)
		}
		if req.Image == "" {
			return "", nil, errors.New("no image data provided")
		}
		data, err := imaging.DecodeBase64(req.Image)
		if err != nil {
			return "", nil, err
		}
		return req.Name, data, nil
	}
}

// multipartMemory is the part of a multipart body kept in memory; the
// rest spills to temporary files.
func (s *Server) multipartMemory() int64 {
	if s.maxBodyBytes > 0 {
		return s.maxBodyBytes
	}
	return defaultMultipartMemory
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"mode":     s.tracker.Mode(),
		"enrolled": len(s.tracker.List()),
		"ready":    s.tracker.Ready(),
	})
}

func (s *Server) enroll(w http.ResponseWriter, r *http.Request) {
	name, data, err := s.readImage(w, r)
	if err != nil {
		if errors.Is(err, imaging.ErrDecode) {
			respondTrackerError(w, err, http.StatusUnprocessableEntity)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := s.tracker.Enroll(r.Context(), name, data)
	if err != nil {
		respondTrackerError(w, err, http.StatusUnprocessableEntity)
		return
	}

	respondJSON(w, http.StatusCreated, enrollResponse{
		Name:       id.Name,
		EnrolledAt: id.EnrolledAt,
		Message:    fmt.Sprintf("%s enrolled", id.Name),
	})
}

func (s *Server) recognize(w http.ResponseWriter, r *http.Request) {
	_, data, err := s.readImage(w, r)
	if err != nil {
		if errors.Is(err, imaging.ErrDecode) {
			respondTrackerError(w, err, http.StatusOK)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.tracker.ProcessFrame(r.Context(), data)
	if err != nil {
		respondTrackerError(w, err, http.StatusOK)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) listRoster(w http.ResponseWriter, r *http.Request) {
	names := s.tracker.List()
	respondJSON(w, http.StatusOK, rosterResponse{
		Names:   names,
		Count:   len(names),
		Pending: s.tracker.Pending(),
	})
}

func (s *Server) removeIdentity(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	removed, err := s.tracker.Remove(r.Context(), name)
	if err != nil {
		respondTrackerError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"removed": removed,
	})
}

func (s *Server) listAttendance(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, attendanceResponse{
		Mode:       s.tracker.Mode(),
		Attendance: s.tracker.All(),
	})
}

func (s *Server) identityAttendance(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	respondJSON(w, http.StatusOK, historyResponse{
		Name:   name,
		State:  s.tracker.State(name).String(),
		Events: s.tracker.History(name),
	})
}

func (s *Server) clearAttendance(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.ClearAll(r.Context()); err != nil {
		respondTrackerError(w, err, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
