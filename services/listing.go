package services

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"listing_intake/identity"
	"listing_intake/logging"
	"listing_intake/models"
	"listing_intake/ocr"
	"listing_intake/parser"
	"listing_intake/ratelimit"
)

var (
	registrationPattern = regexp.MustCompile(`^[A-Z0-9]{4,15}$`)
	imageHashPattern    = regexp.MustCompile(`^[a-f0-9]{64}$`)
	plateSpacePattern   = regexp.MustCompile(`[\s\-]+`)
)

const minMessageLength = 5

// SubmissionRequest is one dealer's attempt to publish a listing. Image is
// optional; when present its fingerprint is reserved alongside ImageHashes
// and it is used for plate recognition if the message carries no plate.
type SubmissionRequest struct {
	ActorID            string
	RemoteIP           string
	Token              string
	Message            string
	City               string
	State              string
	Model              string
	FuelType           models.FuelType
	OwnerType          models.OwnerType
	RegistrationNumber string
	MediaURLs          []string
	ImageHashes        []string
	Image              []byte
	ImageContentType   string
}

// SubmissionDeps wires the collaborators of a SubmissionService. OCR and
// Media may be nil.
type SubmissionDeps struct {
	Parser       *parser.Parser
	Limiter      RateLimiter
	Bot          BotVerifier
	Abuse        AbuseScanner
	OCR          ocr.Recognizer
	OCRThreshold float64
	Guard        *DuplicateGuard
	Media        *MediaService
	Audit        *Auditor
}

// SubmissionService runs a listing submission through rate limiting, bot
// verification, the abuse filter and the duplicate guard, in that order,
// and stops at the first rejection.
type SubmissionService struct {
	deps SubmissionDeps
	now  func() time.Time
}

func NewSubmissionService(deps SubmissionDeps) *SubmissionService {
	if deps.Parser == nil {
		deps.Parser = parser.New(nil)
	}
	return &SubmissionService{deps: deps, now: time.Now}
}

// Submit returns the terminal outcome of the submission. Every outcome other
// than published also comes with a *Error describing the rejection.
func (s *SubmissionService) Submit(ctx context.Context, req SubmissionRequest) (*models.SubmissionResult, error) {
	result := &models.SubmissionResult{Outcome: models.OutcomeFailed}

	if err := validateSubmission(&req); err != nil {
		return result, err
	}

	decision, err := s.deps.Limiter.ConsumeQuota(ctx, req.ActorID, ratelimit.ActionListingCreate)
	if err != nil {
		return result, unexpected("rate limit", err)
	}
	if !decision.Allowed {
		s.deps.Audit.Record(ctx, models.EventRateLimit, req.ActorID, "listing rate limit exceeded", map[string]interface{}{
			"action":  ratelimit.ActionListingCreate,
			"resetAt": decision.ResetAt,
		})
		result.Outcome = models.OutcomeRejectedRateLimited
		result.ResetAt = &decision.ResetAt
		return result, rateLimited(decision.ResetAt)
	}

	if !s.deps.Bot.Verify(ctx, req.Token, req.RemoteIP) {
		s.deps.Audit.Record(ctx, models.EventAuthFailure, req.ActorID, "bot verification failed", map[string]interface{}{
			"ip": req.RemoteIP,
		})
		result.Outcome = models.OutcomeRejectedUnverified
		return result, &Error{Kind: KindVerification, Message: "verification failed"}
	}

	parsed := s.deps.Parser.Parse(req.Message, req.City)
	result.Parsed = &parsed

	scanText := strings.Join([]string{req.Message, parsed.SEOTitle, parsed.Make, req.Model}, " ")
	if hits := s.deps.Abuse.Matches(scanText); len(hits) > 0 {
		s.deps.Audit.Record(ctx, models.EventSuspiciousContent, req.ActorID, "suspicious content rejected", map[string]interface{}{
			"keywords": hits,
		})
		result.Outcome = models.OutcomeRejectedAbuse
		return result, &Error{Kind: KindAbuse, Message: "listing contains prohibited content"}
	}

	plate := req.RegistrationNumber
	if plate == "" {
		plate = parsed.RegistrationNumber
	}
	if plate == "" && len(req.Image) > 0 && s.deps.OCR != nil {
		plate, err = s.recognizePlate(ctx, req.ActorID, req.Image)
		if err != nil {
			return result, err
		}
	}
	if !registrationPattern.MatchString(plate) {
		return result, validationError("registrationNumber", "registration number missing or invalid")
	}
	parsed.RegistrationNumber = plate

	hashes := collectHashes(req.Image, req.ImageHashes)
	listing := s.buildListing(&req, &parsed)

	verdict, err := s.deps.Guard.CheckAndReserve(ctx, listing, hashes)
	if err != nil {
		s.deps.Audit.Record(ctx, models.EventSystemError, req.ActorID, "listing insert failed", map[string]interface{}{
			"err": err.Error(),
		})
		return result, unexpected("create listing", err)
	}
	result.Verdict = verdict

	switch verdict {
	case models.VerdictRejectedDuplicateImage, models.VerdictRejectedDuplicatePlate:
		message := "Duplicate registration number"
		if verdict == models.VerdictRejectedDuplicateImage {
			message = "Duplicate image"
		}
		s.deps.Audit.Record(ctx, models.EventDuplicateAttempt, req.ActorID, message, map[string]interface{}{
			"regNoTail": identity.PlateTail(plate),
			"verdict":   verdict,
		})
		result.Outcome = models.OutcomeRejectedDuplicate
		return result, &Error{Kind: KindDuplicate, Message: message}
	}

	result.Outcome = models.OutcomePublished
	result.ListingID = &listing.ID

	if len(req.Image) > 0 && s.deps.Media.Enabled() {
		photoURL, err := s.deps.Media.StorePhoto(ctx, listing.ID, hashes[0], req.Image, req.ImageContentType)
		if err != nil {
			logging.Warn("photo upload failed", "listing", listing.ID, "err", err)
		}
		result.PhotoURL = photoURL
	}

	logging.Info("listing published", "listing", listing.ID, "actor", req.ActorID, "regNoTail", identity.PlateTail(plate))
	return result, nil
}

func (s *SubmissionService) recognizePlate(ctx context.Context, actorID string, image []byte) (string, error) {
	res, err := s.deps.OCR.Recognize(ctx, image)
	if err != nil {
		s.deps.Audit.Record(ctx, models.EventOCRFailure, actorID, "plate recognition unavailable", map[string]interface{}{
			"err": err.Error(),
		})
		if errors.Is(err, ocr.ErrUnavailable) {
			return "", &Error{Kind: KindUpstream, Message: "plate recognition unavailable", Err: err}
		}
		return "", unexpected("plate recognition", err)
	}
	plate, ok := identity.NormalizePlate(res.Plate())
	if !ok || res.Confidence < s.deps.OCRThreshold {
		return "", validationError("registrationNumber", "registration number could not be read from the image")
	}
	return plate, nil
}

func (s *SubmissionService) buildListing(req *SubmissionRequest, parsed *models.ParsedListing) *models.Listing {
	l := &models.Listing{
		ID:                 uuid.New(),
		DealerID:           req.ActorID,
		Title:              parsed.SEOTitle,
		Description:        req.Message,
		Make:               parsed.Make,
		Model:              req.Model,
		Year:               parsed.Year,
		City:               req.City,
		State:              req.State,
		Price:              parsed.Price,
		Km:                 parsed.DistanceKm,
		FuelType:           req.FuelType,
		Transmission:       parsed.Transmission,
		OwnerType:          req.OwnerType,
		InsuranceType:      parsed.InsuranceNote,
		RegistrationNumber: parsed.RegistrationNumber,
		MediaURLs:          req.MediaURLs,
		Status:             models.ListingStatusActive,
		CreatedAt:          s.now(),
	}
	l.ApplyDefaults()
	return l
}

// collectHashes puts the uploaded image's fingerprint first, followed by the
// client-declared ones, without repeats.
func collectHashes(image []byte, declared []string) []string {
	var hashes []string
	seen := make(map[string]bool)
	if len(image) > 0 {
		h := identity.ContentHash(image)
		hashes = append(hashes, h)
		seen[h] = true
	}
	for _, h := range declared {
		if !seen[h] {
			hashes = append(hashes, h)
			seen[h] = true
		}
	}
	return hashes
}

// validateSubmission trims and normalizes req in place.
func validateSubmission(req *SubmissionRequest) error {
	req.Token = strings.TrimSpace(req.Token)
	req.Message = strings.TrimSpace(req.Message)
	req.Model = strings.TrimSpace(req.Model)
	req.City = strings.TrimSpace(req.City)
	req.State = strings.TrimSpace(req.State)
	req.RegistrationNumber = strings.ToUpper(plateSpacePattern.ReplaceAllString(strings.TrimSpace(req.RegistrationNumber), ""))

	if req.ActorID == "" {
		return validationError("actorId", "actor id is required")
	}
	if req.Token == "" {
		return validationError("token", "verification token is required")
	}
	if len(req.Message) < minMessageLength {
		return validationError("message", "message must be at least %d characters", minMessageLength)
	}
	if req.Model == "" {
		return validationError("model", "model is required")
	}
	if !req.FuelType.Valid() {
		return validationError("fuelType", "unsupported fuel type %q", req.FuelType)
	}
	if !req.OwnerType.Valid() {
		return validationError("ownerType", "unsupported owner type %q", req.OwnerType)
	}
	if req.RegistrationNumber != "" && !registrationPattern.MatchString(req.RegistrationNumber) {
		return validationError("registrationNumber", "registration number must be 4-15 letters or digits")
	}
	for _, raw := range req.MediaURLs {
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationError("mediaUrls", "invalid media url %q", raw)
		}
	}
	for i, h := range req.ImageHashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if !imageHashPattern.MatchString(h) {
			return validationError("imageHashes", "image hash must be 64 hex characters")
		}
		req.ImageHashes[i] = h
	}
	return nil
}
