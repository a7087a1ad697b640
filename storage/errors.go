package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicatePlate = errors.New("storage: registration number already listed")
	ErrDuplicateImage = errors.New("storage: image fingerprint already claimed")
)

const (
	constraintListingRegistration = "listings_registration_number_key"
	constraintMediaHash           = "listing_media_hashes_pkey"
)

func isUniqueViolationOnConstraint(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// translateInsertError maps unique violations on the dedup constraints to
// their sentinel errors and passes anything else through.
func translateInsertError(err error) error {
	switch {
	case isUniqueViolationOnConstraint(err, constraintMediaHash):
		return ErrDuplicateImage
	case isUniqueViolationOnConstraint(err, constraintListingRegistration):
		return ErrDuplicatePlate
	}
	return err
}
