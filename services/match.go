package services

import (
	"context"
	"errors"
	"fmt"

	"listing_intake/models"
	"listing_intake/storage"
)

// DuplicateGuard decides whether a registration number or image
// fingerprint has already been claimed. Fingerprints are checked before the
// plate, so a submission that collides on both reports the image.
type DuplicateGuard struct {
	repo ListingRepository
}

func NewDuplicateGuard(repo ListingRepository) *DuplicateGuard {
	return &DuplicateGuard{repo: repo}
}

// Check is a read-only lookup. Either argument may be empty.
func (g *DuplicateGuard) Check(ctx context.Context, plate string, hashes []string) (models.Verdict, error) {
	if len(hashes) > 0 {
		claimed, err := g.repo.FirstClaimedHash(ctx, hashes)
		if err != nil {
			return "", fmt.Errorf("check fingerprints: %w", err)
		}
		if claimed != "" {
			return models.VerdictRejectedDuplicateImage, nil
		}
	}
	if plate != "" {
		exists, err := g.repo.HasRegistration(ctx, plate)
		if err != nil {
			return "", fmt.Errorf("check registration: %w", err)
		}
		if exists {
			return models.VerdictRejectedDuplicatePlate, nil
		}
	}
	return models.VerdictAccepted, nil
}

// CheckAndReserve runs Check and, when it passes, inserts the listing with
// its fingerprints in one atomic write. A concurrent submission that wins
// the race between the check and the write is caught by the store's unique
// constraints and reported with the same verdicts; nothing of the losing
// attempt is kept.
func (g *DuplicateGuard) CheckAndReserve(ctx context.Context, l *models.Listing, hashes []string) (models.Verdict, error) {
	verdict, err := g.Check(ctx, l.RegistrationNumber, hashes)
	if err != nil || verdict != models.VerdictAccepted {
		return verdict, err
	}

	err = g.repo.CreateListing(ctx, l, hashes)
	switch {
	case err == nil:
		return models.VerdictAccepted, nil
	case errors.Is(err, storage.ErrDuplicateImage):
		return models.VerdictRejectedDuplicateImage, nil
	case errors.Is(err, storage.ErrDuplicatePlate):
		return models.VerdictRejectedDuplicatePlate, nil
	}
	return "", fmt.Errorf("create listing: %w", err)
}
