// Package cache provides the per-category, per-day event cache: stable
// key construction, a TTL+LRU in-memory store, a Redis-backed remote
// tier, and category-level lookup helpers.
package cache

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// AllCategories is the sentinel category token for combined legacy lookups.
const AllCategories = "all"

// categoryAliases maps lowercased name variants to canonical category
// names. Unknown inputs pass through unchanged, so the table only needs
// the variants the sources actually emit.
var categoryAliases = map[string]string{
	"techno":             "DJ Sets/Electronic",
	"electronic":         "DJ Sets/Electronic",
	"electro":            "DJ Sets/Electronic",
	"dj":                 "DJ Sets/Electronic",
	"dj sets":            "DJ Sets/Electronic",
	"dj-sets":            "DJ Sets/Electronic",
	"dj sets-electronic": "DJ Sets/Electronic",
	"dj sets/electronic": "DJ Sets/Electronic",
	"house":              "DJ Sets/Electronic",
	"club":               "Clubs/Discos",
	"clubs":              "Clubs/Discos",
	"clubbing":           "Clubs/Discos",
	"disco":              "Clubs/Discos",
	"discos":             "Clubs/Discos",
	"clubs-discos":       "Clubs/Discos",
	"clubs discos":       "Clubs/Discos",
	"clubs/discos":       "Clubs/Discos",
	"party":              "Clubs/Discos",
	"bar":                "Bars",
	"bars":               "Bars",
	"live":               "Live Music",
	"live music":         "Live Music",
	"live-music":         "Live Music",
	"concert":            "Live Music",
	"concerts":           "Live Music",
	"konzert":            "Live Music",
	"konzerte":           "Live Music",
}

// NormalizeCategory resolves a category name variant to its canonical
// form. Matching is case-insensitive; unknown strings are returned
// unchanged (never an error).
func NormalizeCategory(input string) string {
	trimmed := strings.TrimSpace(input)
	if canonical, ok := categoryAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// FormatDate renders a time as the date segment used in cache keys.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// CreateKey builds the stable cache key for (city, date, categories).
// Categories are normalized, sorted, and comma-joined so the key is
// invariant under category order; an empty list collapses to the
// sentinel "all". The textual format
// "<city-lower>_<YYYY-MM-DD>_<categories-or-all>" is a persisted
// contract consumed by external statistics tooling.
func CreateKey(city, date string, categories []string) string {
	token := AllCategories
	if len(categories) > 0 {
		normalized := make([]string, 0, len(categories))
		for _, c := range categories {
			if c = NormalizeCategory(c); c != "" {
				normalized = append(normalized, c)
			}
		}
		if len(normalized) > 0 {
			sort.Strings(normalized)
			token = strings.Join(normalized, ",")
		}
	}
	return strings.ToLower(strings.TrimSpace(city)) + "_" + date + "_" + token
}

// CreateKeyForCategory is the single-category specialization of
// CreateKey. Its category segment agrees byte-for-byte with what
// CreateKey would produce for a one-element list.
func CreateKeyForCategory(city, date, category string) string {
	return CreateKey(city, date, []string{category})
}

// Key is the typed form of a cache key. Internal code round-trips keys
// through ParseKey/Encode instead of hand-parsing the textual format.
type Key struct {
	City       string
	Date       string
	Categories []string // nil means the "all" sentinel
}

// keyPattern anchors on the date segment: everything before it is the
// city (which may itself contain underscores), everything after is the
// category token.
var keyPattern = regexp.MustCompile(`^(.+)_(\d{4}-\d{2}-\d{2})_(.+)$`)

// ParseKey decodes a textual cache key.
func ParseKey(key string) (Key, error) {
	m := keyPattern.FindStringSubmatch(key)
	if m == nil {
		return Key{}, fmt.Errorf("malformed cache key %q", key)
	}
	k := Key{City: m[1], Date: m[2]}
	if m[3] != AllCategories {
		k.Categories = strings.Split(m[3], ",")
	}
	return k, nil
}

// Encode renders the key back into its textual contract form.
func (k Key) Encode() string {
	return CreateKey(k.City, k.Date, k.Categories)
}
