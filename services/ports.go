package services

import (
	"context"

	"github.com/google/uuid"

	"listing_intake/models"
	"listing_intake/ratelimit"
)

// ListingRepository is implemented by storage.PostgresStore and
// storage.MemoryStore.
type ListingRepository interface {
	CreateListing(ctx context.Context, l *models.Listing, hashes []string) error
	GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	SetListingPhoto(ctx context.Context, id uuid.UUID, key string) error
	HasRegistration(ctx context.Context, plate string) (bool, error)
	FirstClaimedHash(ctx context.Context, hashes []string) (string, error)
	ListListings(ctx context.Context, f models.ListingFilters) ([]models.Listing, error)
	CreateChatInitiation(ctx context.Context, c *models.ChatInitiation) error
}

type RateLimiter interface {
	ConsumeQuota(ctx context.Context, actorID, action string) (ratelimit.Decision, error)
}

type BotVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

type AbuseScanner interface {
	Matches(text string) []string
}

// PhotoUploader stores an accepted listing photo and returns its key.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, hash string, data []byte, contentType string) (string, error)
	PublicURL(key string) string
}

// EventRecorder persists security events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, e *models.SecurityEvent) error
}
