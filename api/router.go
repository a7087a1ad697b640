package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"listing_intake/logging"
	"listing_intake/services"
)

// RouterDependencies collects handler dependencies. PlateRecognizer is
// optional and mounted at /ocr/plate when set.
type RouterDependencies struct {
	Parse           *services.ParseService
	Submissions     *services.SubmissionService
	OCRCheck        *services.OCRCheckService
	Chat            *services.ChatService
	Browse          *services.BrowseService
	Health          *services.HealthcheckService
	PlateRecognizer http.Handler
	MaxImageBytes   int64
}

func NewRouter(deps RouterDependencies) http.Handler {
	h := &handlers{deps: deps}
	if h.deps.MaxImageBytes <= 0 {
		h.deps.MaxImageBytes = 10 << 20
	}

	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/api/parser", h.parseListing).Methods(http.MethodPost)
	r.HandleFunc("/api/listings", h.createListing).Methods(http.MethodPost)
	r.HandleFunc("/api/listings", h.listListings).Methods(http.MethodGet)
	r.HandleFunc("/api/ocr-check", h.ocrCheck).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/initiate", h.initiateChat).Methods(http.MethodPost)
	if deps.PlateRecognizer != nil {
		r.Handle("/ocr/plate", deps.PlateRecognizer).Methods(http.MethodPost)
	}

	return r
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{"status": "ok"}
	status := http.StatusOK

	if h.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks, healthy := h.deps.Health.Status(ctx)
		payload["checks"] = checks
		if !healthy {
			status = http.StatusServiceUnavailable
			payload["status"] = "degraded"
		}
	}

	respondJSON(w, status, payload)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
