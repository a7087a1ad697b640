// Package parser turns free-text vehicle listing messages into structured
// listings. Every function here is pure and total: a field the message does
// not mention comes back as its sentinel or as absent, never as an error.
package parser

import (
	"regexp"
	"strings"
	"time"

	"listing_intake/models"
)

// DefaultMakes is the manufacturer vocabulary used when none is configured.
var DefaultMakes = []string{
	"Maruti",
	"Hyundai",
	"Tata",
	"Mahindra",
	"Honda",
	"Toyota",
	"Kia",
	"Skoda",
	"Volkswagen",
	"Renault",
	"Nissan",
	"MG",
	"Ford",
}

// MakeVocabulary matches manufacturer names as whole words, ignoring case.
type MakeVocabulary struct {
	names   []string
	pattern *regexp.Regexp
}

// NewMakeVocabulary compiles names into a single alternation. Blank entries
// are skipped; an empty vocabulary never matches.
func NewMakeVocabulary(names []string) *MakeVocabulary {
	v := &MakeVocabulary{}
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		v.names = append(v.names, name)
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	if len(quoted) > 0 {
		v.pattern = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return v
}

// Names returns the canonical spellings in configured order.
func (v *MakeVocabulary) Names() []string {
	return append([]string(nil), v.names...)
}

// Match returns the canonical name of the make mentioned first in text, or
// models.UnknownMake.
func (v *MakeVocabulary) Match(text string) string {
	if v.pattern == nil {
		return models.UnknownMake
	}
	found := v.pattern.FindString(text)
	if found == "" {
		return models.UnknownMake
	}
	for _, name := range v.names {
		if strings.EqualFold(name, found) {
			return name
		}
	}
	return models.UnknownMake
}

var defaultVocabulary = NewMakeVocabulary(DefaultMakes)

// ExtractMake matches text against DefaultMakes.
func ExtractMake(text string) string {
	return defaultVocabulary.Match(text)
}

// Parser runs every field extractor over a message.
type Parser struct {
	makes *MakeVocabulary
	now   func() time.Time
}

// New creates a Parser for the given make vocabulary. A nil or empty list
// falls back to DefaultMakes.
func New(makes []string) *Parser {
	vocab := defaultVocabulary
	if len(makes) > 0 {
		vocab = NewMakeVocabulary(makes)
	}
	return &Parser{
		makes: vocab,
		now:   time.Now,
	}
}

// SetClock overrides the time source used for the year upper bound.
func (p *Parser) SetClock(now func() time.Time) {
	p.now = now
}

// Parse extracts a ParsedListing from message. locationHint, when non-empty,
// only feeds the SEO title.
func (p *Parser) Parse(message, locationHint string) models.ParsedListing {
	out := models.ParsedListing{
		RegistrationNumber: ExtractRegistration(message),
		Make:               p.makes.Match(message),
		Transmission:       DetectTransmission(message),
		InsuranceNote:      ExtractInsurance(message),
	}
	if year, ok := ExtractYear(message, p.now()); ok {
		out.Year = &year
	}
	if price, ok := ExtractPrice(message); ok {
		out.Price = &price
	}
	if km, ok := ExtractDistance(message); ok {
		out.DistanceKm = &km
	}

	out.SEOTitle = BuildSEOTitle(TitleInput{
		Year:         out.Year,
		Make:         out.Make,
		Transmission: out.Transmission,
		DistanceKm:   out.DistanceKm,
		Location:     locationHint,
	})
	return out
}
