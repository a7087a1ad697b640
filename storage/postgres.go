package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing_intake/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the intake tables. The media hash foreign key is deferred
// so a listing and its fingerprints can be inserted in either order inside
// one transaction.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id UUID PRIMARY KEY,
		dealer_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		make TEXT,
		model TEXT,
		year INTEGER,
		city TEXT,
		state TEXT,
		price BIGINT,
		km BIGINT,
		fuel_type TEXT,
		transmission TEXT,
		owner_type TEXT,
		insurance_type TEXT,
		registration_number TEXT NOT NULL,
		media_urls TEXT[] NOT NULL DEFAULT '{}',
		photo_key TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT listings_registration_number_key UNIQUE (registration_number)
	);

	CREATE TABLE IF NOT EXISTS listing_media_hashes (
		hash TEXT NOT NULL,
		listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		CONSTRAINT listing_media_hashes_pkey PRIMARY KEY (hash)
	);

	CREATE TABLE IF NOT EXISTS chat_initiations (
		id UUID PRIMARY KEY,
		listing_id UUID NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
		dealer_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS api_rate_limits (
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		count INTEGER NOT NULL,
		window_reset_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (actor_id, action)
	);

	CREATE INDEX IF NOT EXISTS idx_listings_status_created ON listings(status, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_listing_media_hashes_listing ON listing_media_hashes(listing_id);
	CREATE INDEX IF NOT EXISTS idx_api_rate_limits_reset ON api_rate_limits(window_reset_at);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `
	id, dealer_id, title, COALESCE(description, ''), COALESCE(make, ''), COALESCE(model, ''),
	year, COALESCE(city, ''), COALESCE(state, ''), price, km, COALESCE(fuel_type, ''),
	COALESCE(transmission, ''), COALESCE(owner_type, ''), COALESCE(insurance_type, ''),
	registration_number, media_urls, photo_key, status, created_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID, &l.DealerID, &l.Title, &l.Description, &l.Make, &l.Model,
		&l.Year, &l.City, &l.State, &l.Price, &l.Km, &l.FuelType,
		&l.Transmission, &l.OwnerType, &l.InsuranceType,
		&l.RegistrationNumber, &l.MediaURLs, &l.PhotoKey, &l.Status, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.ApplyDefaults()
	return &l, nil
}

// CreateListing inserts the listing and claims every fingerprint in one
// transaction. Fingerprints go first so a listing that collides on both an
// image and its plate reports the image. Unique violations come back as
// ErrDuplicateImage or ErrDuplicatePlate and leave nothing behind.
func (s *PostgresStore) CreateListing(ctx context.Context, l *models.Listing, hashes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, h := range hashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO listing_media_hashes (hash, listing_id) VALUES ($1, $2)`, h, l.ID,
		); err != nil {
			return translateInsertError(err)
		}
	}

	mediaURLs := l.MediaURLs
	if mediaURLs == nil {
		mediaURLs = []string{}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO listings (
			id, dealer_id, title, description, make, model, year, city, state,
			price, km, fuel_type, transmission, owner_type, insurance_type,
			registration_number, media_urls, photo_key, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)`,
		l.ID, l.DealerID, l.Title, l.Description, l.Make, l.Model, l.Year, l.City, l.State,
		l.Price, l.Km, string(l.FuelType), string(l.Transmission), string(l.OwnerType), l.InsuranceType,
		l.RegistrationNumber, mediaURLs, l.PhotoKey, l.Status, l.CreatedAt,
	)
	if err != nil {
		return translateInsertError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translateInsertError(err)
	}
	return nil
}

func (s *PostgresStore) GetListingByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(s.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) SetListingPhoto(ctx context.Context, id uuid.UUID, key string) error {
	_, err := s.pool.Exec(ctx, `UPDATE listings SET photo_key = $2 WHERE id = $1`, id, key)
	return err
}

// HasRegistration reports whether any listing already carries plate.
func (s *PostgresStore) HasRegistration(ctx context.Context, plate string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE registration_number = $1)`,
		plate,
	).Scan(&exists)
	return exists, err
}

// FirstClaimedHash returns the first of hashes that is already claimed, or
// "" when none is.
func (s *PostgresStore) FirstClaimedHash(ctx context.Context, hashes []string) (string, error) {
	if len(hashes) == 0 {
		return "", nil
	}
	rows, err := s.pool.Query(ctx, `SELECT hash FROM listing_media_hashes WHERE hash = ANY($1)`, hashes)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	claimed := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return "", err
		}
		claimed[h] = true
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	for _, h := range hashes {
		if claimed[h] {
			return h, nil
		}
	}
	return "", nil
}

// ListListings returns active listings matching f.
func (s *PostgresStore) ListListings(ctx context.Context, f models.ListingFilters) ([]models.Listing, error) {
	where := []string{"status = $1"}
	args := []interface{}{models.ListingStatusActive}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.MinPrice > 0 {
		add("price >= $%d", f.MinPrice)
	}
	if f.MaxPrice > 0 {
		add("price <= $%d", f.MaxPrice)
	}
	if f.MinKm > 0 {
		add("km >= $%d", f.MinKm)
	}
	if f.MaxKm > 0 {
		add("km <= $%d", f.MaxKm)
	}
	if f.FuelType != "" {
		add("fuel_type = $%d", string(f.FuelType))
	}
	if f.Transmission != "" {
		add("transmission = $%d", string(f.Transmission))
	}
	if f.OwnerType != "" {
		add("owner_type = $%d", string(f.OwnerType))
	}
	if f.City != "" {
		add("city ILIKE $%d", f.City)
	}
	if f.State != "" {
		add("state ILIKE $%d", f.State)
	}

	order := "created_at DESC"
	switch f.Sort {
	case models.SortPriceAsc:
		order = "price ASC NULLS LAST, created_at DESC"
	case models.SortPriceDesc:
		order = "price DESC NULLS LAST, created_at DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM listings WHERE %s ORDER BY %s LIMIT $%d`,
		listingColumns, strings.Join(where, " AND "), order, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// =============================================================================
// Chat
// =============================================================================

func (s *PostgresStore) CreateChatInitiation(ctx context.Context, c *models.ChatInitiation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_initiations (id, listing_id, dealer_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.ListingID, c.DealerID, c.Message, c.CreatedAt,
	)
	return err
}

// =============================================================================
// Rate limits
// =============================================================================

// Increment implements ratelimit.Store with a single upsert so concurrent
// callers never lose an update.
func (s *PostgresStore) Increment(ctx context.Context, actorID, action string, now time.Time, window time.Duration) (int, time.Time, error) {
	query := `
		INSERT INTO api_rate_limits (actor_id, action, count, window_reset_at)
		VALUES ($1, $2, 1, $4)
		ON CONFLICT (actor_id, action) DO UPDATE SET
			count = CASE WHEN api_rate_limits.window_reset_at <= $3 THEN 1 ELSE api_rate_limits.count + 1 END,
			window_reset_at = CASE WHEN api_rate_limits.window_reset_at <= $3 THEN EXCLUDED.window_reset_at ELSE api_rate_limits.window_reset_at END
		RETURNING count, window_reset_at`

	var (
		count   int
		resetAt time.Time
	)
	err := s.pool.QueryRow(ctx, query, actorID, action, now, now.Add(window)).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("increment rate limit: %w", err)
	}
	return count, resetAt, nil
}

func (s *PostgresStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM api_rate_limits WHERE window_reset_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
