package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of a listing submission.
type Outcome string

const (
	OutcomePublished           Outcome = "published"
	OutcomeRejectedDuplicate   Outcome = "rejected_duplicate"
	OutcomeRejectedAbuse       Outcome = "rejected_abuse"
	OutcomeRejectedUnverified  Outcome = "rejected_unverified"
	OutcomeRejectedRateLimited Outcome = "rejected_rate_limited"
	OutcomeFailed              Outcome = "failed"
)

// Verdict is the duplicate guard's answer for one reservation attempt.
type Verdict string

const (
	VerdictAccepted               Verdict = "accepted"
	VerdictRejectedDuplicatePlate Verdict = "rejected_duplicate_plate"
	VerdictRejectedDuplicateImage Verdict = "rejected_duplicate_image"
)

// SubmissionResult reports how far a submission got through the pipeline.
type SubmissionResult struct {
	Outcome   Outcome        `json:"outcome"`
	ListingID *uuid.UUID     `json:"listing_id,omitempty"`
	Verdict   Verdict        `json:"verdict,omitempty"`
	Parsed    *ParsedListing `json:"parsed,omitempty"`
	PhotoURL  string         `json:"photo_url,omitempty"`
	ResetAt   *time.Time     `json:"reset_at,omitempty"`
}
