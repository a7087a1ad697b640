package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"listing_intake/models"
)

// MemoryStore is an in-process listing store with the same uniqueness
// guarantees as PostgresStore. Used when no DATABASE_URL is configured and
// in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]*models.Listing
	order    []uuid.UUID
	plates   map[string]uuid.UUID
	hashes   map[string]uuid.UUID
	chats    []models.ChatInitiation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: make(map[uuid.UUID]*models.Listing),
		plates:   make(map[string]uuid.UUID),
		hashes:   make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) CreateListing(ctx context.Context, l *models.Listing, hashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range hashes {
		if _, ok := s.hashes[h]; ok {
			return ErrDuplicateImage
		}
	}
	if _, ok := s.plates[l.RegistrationNumber]; ok {
		return ErrDuplicatePlate
	}

	stored := *l
	stored.MediaURLs = append([]string{}, l.MediaURLs...)
	s.listings[l.ID] = &stored
	s.order = append(s.order, l.ID)
	s.plates[l.RegistrationNumber] = l.ID
	for _, h := range hashes {
		s.hashes[h] = l.ID
	}
	return nil
}

func (s *MemoryStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	out := *l
	out.ApplyDefaults()
	return &out, nil
}

func (s *MemoryStore) SetListingPhoto(ctx context.Context, id uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.listings[id]; ok {
		l.PhotoKey = &key
	}
	return nil
}

func (s *MemoryStore) HasRegistration(ctx context.Context, plate string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.plates[plate]
	return ok, nil
}

func (s *MemoryStore) FirstClaimedHash(ctx context.Context, hashes []string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, h := range hashes {
		if _, ok := s.hashes[h]; ok {
			return h, nil
		}
	}
	return "", nil
}

func (s *MemoryStore) ListListings(ctx context.Context, f models.ListingFilters) ([]models.Listing, error) {
	s.mu.RLock()
	var out []models.Listing
	for i := len(s.order) - 1; i >= 0; i-- {
		l := *s.listings[s.order[i]]
		l.ApplyDefaults()
		if matchesFilters(&l, f) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

	switch f.Sort {
	case models.SortPriceAsc:
		sort.SliceStable(out, func(i, j int) bool { return priceLess(out[i].Price, out[j].Price, false) })
	case models.SortPriceDesc:
		sort.SliceStable(out, func(i, j int) bool { return priceLess(out[i].Price, out[j].Price, true) })
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// priceLess orders listings without a price last in both directions.
func priceLess(a, b *int64, desc bool) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	case desc:
		return *a > *b
	default:
		return *a < *b
	}
}

func matchesFilters(l *models.Listing, f models.ListingFilters) bool {
	if l.Status != models.ListingStatusActive {
		return false
	}
	if f.MinPrice > 0 && (l.Price == nil || *l.Price < f.MinPrice) {
		return false
	}
	if f.MaxPrice > 0 && (l.Price == nil || *l.Price > f.MaxPrice) {
		return false
	}
	if f.MinKm > 0 && (l.Km == nil || *l.Km < f.MinKm) {
		return false
	}
	if f.MaxKm > 0 && (l.Km == nil || *l.Km > f.MaxKm) {
		return false
	}
	if f.FuelType != "" && l.FuelType != f.FuelType {
		return false
	}
	if f.Transmission != "" && l.Transmission != f.Transmission {
		return false
	}
	if f.OwnerType != "" && l.OwnerType != f.OwnerType {
		return false
	}
	if f.City != "" && !strings.EqualFold(l.City, f.City) {
		return false
	}
	if f.State != "" && !strings.EqualFold(l.State, f.State) {
		return false
	}
	return true
}

func (s *MemoryStore) CreateChatInitiation(ctx context.Context, c *models.ChatInitiation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chats = append(s.chats, *c)
	return nil
}

// ChatInitiations returns every recorded chat initiation for listingID.
func (s *MemoryStore) ChatInitiations(listingID uuid.UUID) []models.ChatInitiation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ChatInitiation
	for _, c := range s.chats {
		if c.ListingID == listingID {
			out = append(out, c)
		}
	}
	return out
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
