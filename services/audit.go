package services

import (
	"context"
	"encoding/json"
	"time"

	"listing_intake/logging"
	"listing_intake/models"
)

// Auditor logs security events and, when a recorder is configured, stores
// them. A nil *Auditor only logs.
type Auditor struct {
	recorder EventRecorder
}

func NewAuditor(recorder EventRecorder) *Auditor {
	return &Auditor{recorder: recorder}
}

func (a *Auditor) Record(ctx context.Context, eventType models.EventType, actorID, message string, meta map[string]interface{}) {
	meta = logging.Sanitize(meta)

	level := models.LogLevelSecurity
	if eventType == models.EventSystemError {
		level = models.LogLevelError
	}

	kv := append([]interface{}{"type", eventType, "actor", actorID}, logging.KeyVals(meta)...)
	if level == models.LogLevelError {
		logging.Error(message, kv...)
	} else {
		logging.Warn(message, kv...)
	}

	if a == nil || a.recorder == nil {
		return
	}

	event := &models.SecurityEvent{
		Level:     level,
		Type:      eventType,
		Message:   message,
		ActorID:   actorID,
		CreatedAt: time.Now(),
	}
	if len(meta) > 0 {
		if raw, err := json.Marshal(meta); err == nil {
			event.Meta = raw
		}
	}
	if err := a.recorder.RecordEvent(ctx, event); err != nil {
		logging.Warn("failed to record security event", "type", eventType, "err", err)
	}
}
