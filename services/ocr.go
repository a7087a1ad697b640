package services

import (
	"context"
	"errors"
	"fmt"

	"listing_intake/identity"
	"listing_intake/models"
	"listing_intake/ocr"
)

// OCRCheckResult is returned for an image whose plate was read and is not
// yet listed.
type OCRCheckResult struct {
	RegistrationNumber string  `json:"registrationNumber"`
	Confidence         float64 `json:"confidence"`
	ImageHash          string  `json:"imageHash"`
}

// OCRCheckService pre-checks a photo before the dealer fills in the rest of
// the listing.
type OCRCheckService struct {
	recognizer ocr.Recognizer
	threshold  float64
	guard      *DuplicateGuard
	audit      *Auditor
}

func NewOCRCheckService(recognizer ocr.Recognizer, threshold float64, guard *DuplicateGuard, audit *Auditor) *OCRCheckService {
	return &OCRCheckService{
		recognizer: recognizer,
		threshold:  threshold,
		guard:      guard,
		audit:      audit,
	}
}

func (s *OCRCheckService) Check(ctx context.Context, actorID string, image []byte) (*OCRCheckResult, error) {
	if len(image) == 0 {
		return nil, validationError("image", "image is required")
	}
	hash := identity.ContentHash(image)

	res, err := s.recognizer.Recognize(ctx, image)
	if err != nil {
		s.audit.Record(ctx, models.EventOCRFailure, actorID, "plate recognition unavailable", map[string]interface{}{
			"imageHash": hash,
			"err":       err.Error(),
		})
		if errors.Is(err, ocr.ErrUnavailable) {
			return nil, &Error{Kind: KindUpstream, Message: "plate recognition unavailable", Err: err}
		}
		return nil, unexpected("plate recognition", err)
	}

	plate, ok := identity.NormalizePlate(res.Plate())
	if !ok {
		return nil, &Error{Kind: KindUnreadable, Message: "no registration number detected"}
	}
	if res.Confidence < s.threshold {
		return nil, &Error{Kind: KindUnreadable, Message: fmt.Sprintf("low confidence %.2f", res.Confidence)}
	}

	verdict, err := s.guard.Check(ctx, plate, []string{hash})
	if err != nil {
		return nil, unexpected("duplicate check", err)
	}
	switch verdict {
	case models.VerdictRejectedDuplicateImage:
		s.audit.Record(ctx, models.EventDuplicateAttempt, actorID, "Duplicate image", map[string]interface{}{
			"imageHash": hash,
		})
		return nil, &Error{Kind: KindDuplicate, Message: "Duplicate image"}
	case models.VerdictRejectedDuplicatePlate:
		s.audit.Record(ctx, models.EventDuplicateAttempt, actorID, "Duplicate registration number", map[string]interface{}{
			"regNoTail": identity.PlateTail(plate),
		})
		return nil, &Error{Kind: KindDuplicate, Message: "Duplicate registration number"}
	}

	return &OCRCheckResult{
		RegistrationNumber: plate,
		Confidence:         res.Confidence,
		ImageHash:          hash,
	}, nil
}
