package models

import (
	"time"

	"github.com/google/uuid"
)

// Transmission is the gearbox type detected in a listing message.
type Transmission string

const (
	TransmissionManual    Transmission = "Manual"
	TransmissionAutomatic Transmission = "Automatic"
)

// Domain sentinels. Title building and storage depend on the exact strings.
const (
	UnknownMake           = "Unknown Make"
	InsuranceNotSpecified = "Insurance not specified"
	UnknownCity           = "Unknown City"
	UnknownState          = "Unknown State"
)

// ParsedListing is the structured result of parsing one free-text message.
// Optional fields are nil when the message did not mention them.
type ParsedListing struct {
	RegistrationNumber string       `json:"registrationNumber"`
	Year               *int         `json:"year"`
	Make               string       `json:"make"`
	Transmission       Transmission `json:"transmission"`
	InsuranceNote      string       `json:"insuranceNote"`
	Price              *int64       `json:"price"`
	DistanceKm         *int64       `json:"distanceKm"`
	SEOTitle           string       `json:"seoTitle"`
}

type FuelType string

const (
	FuelPetrol   FuelType = "Petrol"
	FuelDiesel   FuelType = "Diesel"
	FuelCNG      FuelType = "CNG"
	FuelElectric FuelType = "Electric"
	FuelHybrid   FuelType = "Hybrid"
)

func (f FuelType) Valid() bool {
	switch f {
	case FuelPetrol, FuelDiesel, FuelCNG, FuelElectric, FuelHybrid:
		return true
	}
	return false
}

type OwnerType string

const (
	OwnerFirst     OwnerType = "1st"
	OwnerSecond    OwnerType = "2nd"
	OwnerThirdPlus OwnerType = "3rd+"
)

func (o OwnerType) Valid() bool {
	switch o {
	case OwnerFirst, OwnerSecond, OwnerThirdPlus:
		return true
	}
	return false
}

// Listing status
const (
	ListingStatusActive  = "active"
	ListingStatusSold    = "sold"
	ListingStatusBlocked = "blocked"
)

// Listing is a published vehicle listing as persisted by the storage layer.
type Listing struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	DealerID           string       `json:"dealer_id" db:"dealer_id"`
	Title              string       `json:"title" db:"title"`
	Description        string       `json:"description" db:"description"`
	Make               string       `json:"make" db:"make"`
	Model              string       `json:"model" db:"model"`
	Year               *int         `json:"year" db:"year"`
	City               string       `json:"city" db:"city"`
	State              string       `json:"state" db:"state"`
	Price              *int64       `json:"price" db:"price"`
	Km                 *int64       `json:"km" db:"km"`
	FuelType           FuelType     `json:"fuel_type" db:"fuel_type"`
	Transmission       Transmission `json:"transmission" db:"transmission"`
	OwnerType          OwnerType    `json:"owner_type" db:"owner_type"`
	InsuranceType      string       `json:"insurance_type" db:"insurance_type"`
	RegistrationNumber string       `json:"registration_number" db:"registration_number"`
	MediaURLs          []string     `json:"media_urls" db:"media_urls"`
	PhotoKey           *string      `json:"photo_key" db:"photo_key"`
	Status             string       `json:"status" db:"status"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
}

// ApplyDefaults fills the documented fallback for every field a storage row
// may leave empty.
func (l *Listing) ApplyDefaults() {
	if l.Make == "" {
		l.Make = UnknownMake
	}
	if l.City == "" {
		l.City = UnknownCity
	}
	if l.State == "" {
		l.State = UnknownState
	}
	if l.InsuranceType == "" {
		l.InsuranceType = InsuranceNotSpecified
	}
	if l.Transmission == "" {
		l.Transmission = TransmissionManual
	}
	if l.Status == "" {
		l.Status = ListingStatusActive
	}
	if l.MediaURLs == nil {
		l.MediaURLs = []string{}
	}
}

// ListingMediaHash links an image fingerprint to the listing that claimed it.
type ListingMediaHash struct {
	ListingID uuid.UUID `json:"listing_id" db:"listing_id"`
	Hash      string    `json:"hash" db:"hash"`
}

type ListingSort string

const (
	SortLatest    ListingSort = "latest"
	SortPriceAsc  ListingSort = "price_asc"
	SortPriceDesc ListingSort = "price_desc"
)

// ListingFilters narrows a browse query. Zero values mean "no filter".
type ListingFilters struct {
	MinPrice     int64
	MaxPrice     int64
	MinKm        int64
	MaxKm        int64
	FuelType     FuelType
	Transmission Transmission
	OwnerType    OwnerType
	City         string
	State        string
	Sort         ListingSort
	Limit        int
}

// ChatInitiation is a buyer-side dealer opening a conversation on a listing.
type ChatInitiation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ListingID uuid.UUID `json:"listing_id" db:"listing_id"`
	DealerID  string    `json:"dealer_id" db:"dealer_id"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
