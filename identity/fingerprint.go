// Package identity derives the stable identifiers used for deduplication:
// image content hashes and normalized registration plates.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	nonAlnumRegex = regexp.MustCompile(`[^A-Za-z0-9]`)
	plateRegex    = regexp.MustCompile(`[A-Z]{2}\d{1,2}[A-Z]{1,3}\d{3,4}`)
)

// ContentHash returns the lowercase hex SHA-256 of data. Identical bytes
// always give the same 64-character fingerprint; nothing about the image
// format is interpreted.
func ContentHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// NormalizePlate strips everything but letters and digits from raw OCR or
// user text, upper-cases it and returns the first plate-shaped run.
func NormalizePlate(raw string) (string, bool) {
	cleaned := strings.ToUpper(nonAlnumRegex.ReplaceAllString(raw, ""))
	plate := plateRegex.FindString(cleaned)
	if plate == "" {
		return "", false
	}
	return plate, true
}

// PlateTail returns the last four characters of a plate, safe for logs.
func PlateTail(plate string) string {
	if len(plate) <= 4 {
		return plate
	}
	return plate[len(plate)-4:]
}
