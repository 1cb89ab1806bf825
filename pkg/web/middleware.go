package web

import (
	"net/http"
	"time"

	"github.com/MrCodeEU/facetrack/pkg/logging"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs each request through logrus.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		entry := logging.WithFields(logging.Fields{
			"component":  "http",
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": chiMiddleware.GetReqID(r.Context()),
			"remote":     r.RemoteAddr,
		})
		switch {
		case ww.Status() >= 500:
			entry.Error("Request failed")
		case r.URL.Path == "/api/v1/health":
			entry.Debug("Request")
		default:
			entry.Info("Request")
		}
	})
}

// cors allows browser clients on any origin. The API carries no cookies.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
