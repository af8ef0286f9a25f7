package cache

import (
	"context"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

// CategoryInfo describes the cache state of one requested category.
// FromCache with EventCount zero means an explicit empty result was
// cached - the category was queried upstream and legitimately has no
// events, which is distinct from "never queried".
type CategoryInfo struct {
	FromCache  bool `json:"fromCache"`
	EventCount int  `json:"eventCount"`
}

// CategoryLookup is the result of a multi-category cache probe. Every
// requested category lands in exactly one of CachedEvents or
// MissingCategories, keyed by canonical name.
type CategoryLookup struct {
	CachedEvents      map[string][]model.EventRecord
	MissingCategories []string
	CacheInfo         map[string]CategoryInfo
}

// SetForCategory caches the events of a single (city, date, category)
// triple. An empty slice is a valid, cacheable result.
func SetForCategory(ctx context.Context, s Store, city, date, category string, events []model.EventRecord, ttl time.Duration) error {
	return s.Set(ctx, CreateKeyForCategory(city, date, category), events, ttl)
}

// GetForCategories probes the cache for each requested category of one
// (city, date). Category names are normalized before lookup; the result
// reports every requested category either as cached (including cached
// empty results) or as missing.
func GetForCategories(ctx context.Context, s Store, city, date string, categories []string) CategoryLookup {
	lookup := CategoryLookup{
		CachedEvents: make(map[string][]model.EventRecord),
		CacheInfo:    make(map[string]CategoryInfo),
	}

	seen := make(map[string]bool)
	for _, raw := range categories {
		category := NormalizeCategory(raw)
		if category == "" || seen[category] {
			continue
		}
		seen[category] = true

		events, ok := s.Get(ctx, CreateKeyForCategory(city, date, category))
		if !ok {
			lookup.MissingCategories = append(lookup.MissingCategories, category)
			lookup.CacheInfo[category] = CategoryInfo{FromCache: false}
			continue
		}
		lookup.CachedEvents[category] = events
		lookup.CacheInfo[category] = CategoryInfo{FromCache: true, EventCount: len(events)}
	}

	return lookup
}
