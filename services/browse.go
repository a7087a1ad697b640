package services

import (
	"context"
	"strings"

	"listing_intake/models"
	"listing_intake/parser"
)

const maxBrowseLimit = 200

// BrowseService lists active listings.
type BrowseService struct {
	repo        ListingRepository
	defaultSize int
}

func NewBrowseService(repo ListingRepository, defaultSize int) *BrowseService {
	if defaultSize <= 0 {
		defaultSize = 50
	}
	return &BrowseService{repo: repo, defaultSize: defaultSize}
}

func (s *BrowseService) List(ctx context.Context, f models.ListingFilters) ([]models.Listing, error) {
	if f.FuelType != "" && !f.FuelType.Valid() {
		return nil, validationError("fuelType", "unsupported fuel type %q", f.FuelType)
	}
	if f.OwnerType != "" && !f.OwnerType.Valid() {
		return nil, validationError("ownerType", "unsupported owner type %q", f.OwnerType)
	}
	switch f.Transmission {
	case "", models.TransmissionManual, models.TransmissionAutomatic:
	default:
		return nil, validationError("transmission", "unsupported transmission %q", f.Transmission)
	}
	switch f.Sort {
	case "":
		f.Sort = models.SortLatest
	case models.SortLatest, models.SortPriceAsc, models.SortPriceDesc:
	default:
		return nil, validationError("sort", "unsupported sort %q", f.Sort)
	}
	if f.MinPrice < 0 || f.MaxPrice < 0 || f.MinKm < 0 || f.MaxKm < 0 {
		return nil, validationError("filters", "range bounds must not be negative")
	}

	if f.Limit <= 0 {
		f.Limit = s.defaultSize
	}
	if f.Limit > maxBrowseLimit {
		f.Limit = maxBrowseLimit
	}

	listings, err := s.repo.ListListings(ctx, f)
	if err != nil {
		return nil, unexpected("list listings", err)
	}
	if listings == nil {
		listings = []models.Listing{}
	}
	return listings, nil
}

// ParseService exposes the smart parser to the API.
type ParseService struct {
	parser *parser.Parser
}

func NewParseService(p *parser.Parser) *ParseService {
	return &ParseService{parser: p}
}

func (s *ParseService) Parse(message, city string) (models.ParsedListing, error) {
	message = strings.TrimSpace(message)
	if len(message) < minMessageLength {
		return models.ParsedListing{}, validationError("message", "message must be at least %d characters", minMessageLength)
	}
	return s.parser.Parse(message, strings.TrimSpace(city)), nil
}
