package models

import (
	"encoding/json"
	"time"
)

type LogLevel string

const (
	LogLevelInfo     LogLevel = "info"
	LogLevelWarn     LogLevel = "warn"
	LogLevelError    LogLevel = "error"
	LogLevelSecurity LogLevel = "security"
)

// EventType classifies an audited rejection or failure.
type EventType string

const (
	EventRateLimit         EventType = "RATE_LIMIT"
	EventOCRFailure        EventType = "OCR_FAILURE"
	EventAuthFailure       EventType = "AUTH_FAILURE"
	EventDuplicateAttempt  EventType = "DUPLICATE_ATTEMPT"
	EventSuspiciousContent EventType = "SUSPICIOUS_CONTENT"
	EventSystemError       EventType = "SYSTEM_ERROR"
)

// SecurityEvent is one audit record. Meta is sanitized before it is stored.
type SecurityEvent struct {
	ID        int64           `json:"id" db:"id"`
	Level     LogLevel        `json:"level" db:"level"`
	Type      EventType       `json:"type" db:"type"`
	Message   string          `json:"message" db:"message"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	Meta      json.RawMessage `json:"meta" db:"meta"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
