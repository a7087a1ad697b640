package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"listing_intake/models"
)

var (
	regNoPattern        = regexp.MustCompile(`(?i)\b([A-Z]{2}\s?\d{1,2}\s?[A-Z]{1,3}\s?\d{3,4})\b`)
	yearPattern         = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	automaticPattern    = regexp.MustCompile(`(?i)\b(?:auto|automatic)\b`)
	segmentSplitPattern = regexp.MustCompile(`\n|\|`)
	insurancePattern    = regexp.MustCompile(`(?i)insurance|ins|policy`)
	tillPattern         = regexp.MustCompile(`(?i)till`)
	pricePattern        = regexp.MustCompile(`(?i)(?:\b(?:price|rs\.?|inr)|₹)\s*[:\-]?\s*([\d,.]+(?:\s*lakh)?)`)
	lakhPattern         = regexp.MustCompile(`(?i)lakh`)
	nonDecimalPattern   = regexp.MustCompile(`[^\d.]`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	unitFirstPattern    = regexp.MustCompile(`(?i)(?:km|kms|kilometer|kilometre)\s*[:\-]?\s*([\d,.]+)`)
	numberFirstPattern  = regexp.MustCompile(`(?i)([\d,.]+)\s*(?:km|kms|kilometer|kilometre)`)
)

const (
	minYear    = 1990
	rupeesLakh = 100000
)

// ExtractRegistration returns the leftmost registration-number-shaped token
// with whitespace removed and letters upper-cased, or "" when none is present.
func ExtractRegistration(text string) string {
	m := regNoPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.ToUpper(whitespacePattern.ReplaceAllString(m[1], ""))
}

// ExtractYear returns the first 19xx/20xx token in document order that falls
// inside [1990, now.Year()+1].
func ExtractYear(text string, now time.Time) (int, bool) {
	maxYear := now.Year() + 1
	for _, tok := range yearPattern.FindAllString(text, -1) {
		y, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if y >= minYear && y <= maxYear {
			return y, true
		}
	}
	return 0, false
}

// DetectTransmission classifies the message as Automatic when it mentions
// "auto" or "automatic" as a word. Manual is the default, not a detection.
func DetectTransmission(text string) models.Transmission {
	if automaticPattern.MatchString(text) {
		return models.TransmissionAutomatic
	}
	return models.TransmissionManual
}

// ExtractInsurance returns the first clause that talks about insurance.
// Segments are split on newlines and pipes; inside the matching segment the
// comma-delimited clause carrying the keyword is kept. A clause mentioning
// "till" is a still-valid comprehensive policy and is reported as "Full ...".
func ExtractInsurance(text string) string {
	for _, segment := range segmentSplitPattern.Split(text, -1) {
		if !insurancePattern.MatchString(segment) {
			continue
		}
		note := strings.TrimSpace(segment)
		for _, clause := range strings.Split(segment, ",") {
			if insurancePattern.MatchString(clause) {
				note = strings.TrimSpace(clause)
				break
			}
		}
		if tillPattern.MatchString(note) {
			return "Full " + note
		}
		return note
	}
	return models.InsuranceNotSpecified
}

// ExtractPrice reads the amount introduced by "price", "rs", "inr" or "₹".
// The words must start a word, so the "rs" in "owners" is not a prefix.
// "6.5 lakh" becomes 650000; other numerals go through NormalizeNumber.
func ExtractPrice(text string) (int64, bool) {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if lakhPattern.MatchString(raw) {
		base, err := strconv.ParseFloat(nonDecimalPattern.ReplaceAllString(raw, ""), 64)
		if err != nil || math.IsNaN(base) || math.IsInf(base, 0) {
			return 0, false
		}
		amount := math.Round(base * rupeesLakh)
		if amount >= math.MaxInt64 {
			return 0, false
		}
		return int64(amount), true
	}
	return NormalizeNumber(raw)
}

// ExtractDistance reads the odometer value. The unit-before-number form
// ("kms: 45,000") is tried first and the number-before-unit form
// ("38000 km") only when the first yields no digits.
func ExtractDistance(text string) (int64, bool) {
	if m := unitFirstPattern.FindStringSubmatch(text); m != nil {
		if km, ok := NormalizeNumber(m[1]); ok {
			return km, true
		}
	}
	if m := numberFirstPattern.FindStringSubmatch(text); m != nil {
		return NormalizeNumber(m[1])
	}
	return 0, false
}
