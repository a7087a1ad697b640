package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"listing_intake/logging"
	"listing_intake/models"
	"listing_intake/services"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Kind    services.Kind  `json:"kind,omitempty"`
	Field   string         `json:"field,omitempty"`
	ResetAt *time.Time     `json:"resetAt,omitempty"`
	Outcome models.Outcome `json:"outcome,omitempty"`
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindAbuse:
		return http.StatusBadRequest
	case services.KindVerification:
		return http.StatusUnauthorized
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindDuplicate:
		return http.StatusConflict
	case services.KindUnreadable:
		return http.StatusUnprocessableEntity
	case services.KindRateLimited:
		return http.StatusTooManyRequests
	case services.KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err to a status and body. Unexpected failures are
// logged in full and reported opaquely.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, outcome models.Outcome) {
	resp := errorResponse{Outcome: outcome}

	var svcErr *services.Error
	if !errors.As(err, &svcErr) || svcErr.Kind == services.KindUnexpected {
		logging.Error("request failed", "path", r.URL.Path, "err", err)
		resp.Error = "internal error"
		resp.Kind = services.KindUnexpected
		respondJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp.Error = svcErr.Message
	resp.Kind = svcErr.Kind
	resp.Field = svcErr.Field
	resp.ResetAt = svcErr.ResetAt

	if svcErr.ResetAt != nil {
		seconds := int(math.Ceil(time.Until(*svcErr.ResetAt).Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	respondJSON(w, statusFor(svcErr.Kind), resp)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}
