// Package filter rejects listing text that mentions a deny-listed phrase.
package filter

import (
	"errors"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

var ErrEmptyDenyList = errors.New("filter: deny-list is empty")

// ParseDenyList splits a comma-separated keyword list, trimming and
// lower-casing each entry and dropping blanks.
func ParseDenyList(raw string) ([]string, error) {
	var keywords []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	if len(keywords) == 0 {
		return nil, ErrEmptyDenyList
	}
	return keywords, nil
}

// KeywordFilter matches text against a fixed deny-list in one pass.
type KeywordFilter struct {
	// ahocorasick.Matcher keeps per-call state and must not be shared.
	mu       sync.Mutex
	matcher  *ahocorasick.Matcher
	keywords []string
}

func NewKeywordFilter(keywords []string) (*KeywordFilter, error) {
	patterns := make([][]byte, 0, len(keywords))
	kept := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		patterns = append(patterns, []byte(kw))
		kept = append(kept, kw)
	}
	if len(kept) == 0 {
		return nil, ErrEmptyDenyList
	}
	return &KeywordFilter{
		matcher:  ahocorasick.NewMatcher(patterns),
		keywords: kept,
	}, nil
}

// Scan reports whether text contains any deny-listed keyword as a
// case-insensitive substring.
func (f *KeywordFilter) Scan(text string) bool {
	return len(f.Matches(text)) > 0
}

// Matches returns the deny-listed keywords found in text, in deny-list order.
func (f *KeywordFilter) Matches(text string) []string {
	if text == "" {
		return nil
	}
	lowered := []byte(strings.ToLower(text))

	f.mu.Lock()
	hits := f.matcher.Match(lowered)
	f.mu.Unlock()

	if len(hits) == 0 {
		return nil
	}
	found := make([]bool, len(f.keywords))
	for _, i := range hits {
		found[i] = true
	}
	out := make([]string, 0, len(hits))
	for i, kw := range f.keywords {
		if found[i] {
			out = append(out, kw)
		}
	}
	return out
}

// Keywords returns the active deny-list.
func (f *KeywordFilter) Keywords() []string {
	return append([]string(nil), f.keywords...)
}
