package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"listing_intake/httputil"
	"listing_intake/logging"
)

// MediaService stores accepted listing photos under their content hash.
type MediaService struct {
	uploader PhotoUploader
	repo     ListingRepository
	retry    httputil.Retry
}

// NewMediaService creates a MediaService. A nil uploader turns photo storage
// off.
func NewMediaService(uploader PhotoUploader, repo ListingRepository) *MediaService {
	return &MediaService{
		uploader: uploader,
		repo:     repo,
		retry:    httputil.Retry{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond},
	}
}

func (s *MediaService) Enabled() bool {
	return s != nil && s.uploader != nil
}

// StorePhoto uploads data, records its key on the listing and returns the
// photo's public URL. Returns "" when photo storage is off.
func (s *MediaService) StorePhoto(ctx context.Context, listingID uuid.UUID, hash string, data []byte, contentType string) (string, error) {
	if !s.Enabled() || len(data) == 0 {
		return "", nil
	}

	var key string
	err := s.retry.Do(ctx, "upload photo", func(ctx context.Context) error {
		k, err := s.uploader.UploadPhoto(ctx, hash, data, contentType)
		if err != nil {
			return err
		}
		key = k
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := s.repo.SetListingPhoto(ctx, listingID, key); err != nil {
		return "", fmt.Errorf("set listing photo: %w", err)
	}
	logging.Debug("photo stored", "listing", listingID, "key", key)
	return s.uploader.PublicURL(key), nil
}
