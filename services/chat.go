package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"listing_intake/models"
	"listing_intake/ratelimit"
)

const (
	minChatMessage = 2
	maxChatMessage = 500
)

type ChatRequest struct {
	ActorID   string
	RemoteIP  string
	Token     string
	ListingID string
	Message   string
}

// ChatService opens a conversation between a dealer and a listing owner.
type ChatService struct {
	repo    ListingRepository
	limiter RateLimiter
	bot     BotVerifier
	audit   *Auditor
	now     func() time.Time
}

func NewChatService(repo ListingRepository, limiter RateLimiter, bot BotVerifier, audit *Auditor) *ChatService {
	return &ChatService{
		repo:    repo,
		limiter: limiter,
		bot:     bot,
		audit:   audit,
		now:     time.Now,
	}
}

func (s *ChatService) Initiate(ctx context.Context, req ChatRequest) (*models.ChatInitiation, error) {
	listingID, err := uuid.Parse(strings.TrimSpace(req.ListingID))
	if err != nil {
		return nil, validationError("listingId", "listing id must be a UUID")
	}
	message := strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(message); n < minChatMessage || n > maxChatMessage {
		return nil, validationError("message", "message must be %d to %d characters", minChatMessage, maxChatMessage)
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return nil, validationError("token", "verification token is required")
	}
	if req.ActorID == "" {
		return nil, validationError("actorId", "actor id is required")
	}

	decision, err := s.limiter.ConsumeQuota(ctx, req.ActorID, ratelimit.ActionChatInitiate)
	if err != nil {
		return nil, unexpected("rate limit", err)
	}
	if !decision.Allowed {
		s.audit.Record(ctx, models.EventRateLimit, req.ActorID, "chat rate limit exceeded", map[string]interface{}{
			"action":  ratelimit.ActionChatInitiate,
			"resetAt": decision.ResetAt,
		})
		return nil, rateLimited(decision.ResetAt)
	}

	if !s.bot.Verify(ctx, token, req.RemoteIP) {
		s.audit.Record(ctx, models.EventAuthFailure, req.ActorID, "bot verification failed", map[string]interface{}{
			"ip": req.RemoteIP,
		})
		return nil, &Error{Kind: KindVerification, Message: "verification failed"}
	}

	listing, err := s.repo.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, unexpected("get listing", err)
	}
	if listing == nil || listing.Status != models.ListingStatusActive {
		return nil, &Error{Kind: KindNotFound, Field: "listingId", Message: "listing not found"}
	}

	chat := &models.ChatInitiation{
		ID:        uuid.New(),
		ListingID: listingID,
		DealerID:  req.ActorID,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateChatInitiation(ctx, chat); err != nil {
		return nil, unexpected("create chat initiation", err)
	}
	return chat, nil
}
