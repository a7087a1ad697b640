package parser

import (
	"fmt"
	"strconv"
	"strings"

	"listing_intake/models"
)

// TitleInput is the subset of extracted fields the SEO title is built from.
type TitleInput struct {
	Year         *int
	Make         string
	Transmission models.Transmission
	DistanceKm   *int64
	Location     string
}

// BuildSEOTitle renders "{year} {make} {transmission} - {km} in {location}".
// Missing year reads "Used", missing distance reads "Verified KM" and the
// location suffix is dropped when no hint was given.
func BuildSEOTitle(in TitleInput) string {
	year := "Used"
	if in.Year != nil {
		year = strconv.Itoa(*in.Year)
	}

	km := "Verified KM"
	if in.DistanceKm != nil {
		km = FormatNumber(*in.DistanceKm) + " KM"
	}

	location := ""
	if loc := strings.TrimSpace(in.Location); loc != "" {
		location = "in " + loc
	}

	return strings.TrimSpace(fmt.Sprintf("%s %s %s - %s %s", year, in.Make, in.Transmission, km, location))
}
