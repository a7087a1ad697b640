package ocr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"listing_intake/logging"
)

// Handler serves a Recognizer over HTTP: the request body is the raw image
// and the response is a Result document. Backend failures answer 502 with
// an empty Result so callers can treat the body uniformly.
type Handler struct {
	recognizer Recognizer
	maxBytes   int64
}

func NewHandler(recognizer Recognizer, maxBytes int64) *Handler {
	return &Handler{recognizer: recognizer, maxBytes: maxBytes}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "image too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "could not read image"})
		return
	}
	if len(image) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty image"})
		return
	}

	result, err := h.recognizer.Recognize(r.Context(), image)
	if err != nil {
		logging.Warn("plate recognition failed", "err", err)
		writeJSON(w, http.StatusBadGateway, &Result{})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
