// Package dedup detects duplicate events within a batch and against
// previously persisted records. Two records are duplicates when their
// normalized title, start date, and city match - venue-name formatting
// differences do not matter.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/eventflow/eventflow/internal/model"
)

// Key computes the duplicate-detection key for an event: normalized
// title, start date, and city, hashed to a fixed size.
func Key(e model.EventRecord) string {
	var b strings.Builder
	b.WriteString(normalizeTitle(e.Title))
	b.WriteByte('|')
	b.WriteString(e.Day())
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(e.City)))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// normalizeTitle lowercases and collapses internal whitespace.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// richness scores how populated a record is. The batch-internal
// collapse keeps the richest duplicate.
func richness(e model.EventRecord) int {
	score := 0
	for _, field := range []string{
		e.Title, e.Description, e.Price, e.VenueAddress,
		e.WebsiteURL, e.BookingURL, e.ImageURL, e.SourceURL,
	} {
		if field != "" {
			score++
		}
	}
	if e.EndAt != nil {
		score++
	}
	if e.Latitude != nil && e.Longitude != nil {
		score++
	}
	return score
}

// CollapseBatch removes batch-internal duplicates, keeping the most
// populated version of each and unioning source tags. Output order
// follows first occurrence.
func CollapseBatch(events []model.EventRecord) []model.EventRecord {
	byKey := make(map[string]int) // key -> index in result
	result := make([]model.EventRecord, 0, len(events))

	for _, ev := range events {
		key := Key(ev)
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(result)
			result = append(result, ev)
			continue
		}

		kept := result[idx]
		if richness(ev) > richness(kept) {
			ev.Source = model.UnionSources(kept.Source, ev.Source)
			result[idx] = ev
		} else {
			kept.Source = model.UnionSources(kept.Source, ev.Source)
			result[idx] = kept
		}
	}

	return result
}

// Deduplicator partitions batches against persisted candidate events.
type Deduplicator struct {
	mu sync.Mutex

	totalSeen  int64
	duplicates int64
}

// New creates a Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{}
}

// Partition splits batch into events safe to insert and events already
// present in persisted. The batch is collapsed internally first, so the
// returned unique set contains at most one record per duplicate key.
// persisted should hold only candidates for the dates present in the
// batch, not the whole store.
func (d *Deduplicator) Partition(batch, persisted []model.EventRecord) (unique, skipped []model.EventRecord) {
	collapsed := CollapseBatch(batch)

	known := make(map[string]bool, len(persisted))
	for _, ev := range persisted {
		known[Key(ev)] = true
	}

	for _, ev := range collapsed {
		if known[Key(ev)] {
			skipped = append(skipped, ev)
			continue
		}
		unique = append(unique, ev)
	}

	d.mu.Lock()
	d.totalSeen += int64(len(batch))
	d.duplicates += int64(len(batch) - len(unique))
	d.mu.Unlock()

	return unique, skipped
}

// Stats contains deduplication statistics.
type Stats struct {
	TotalSeen      int64
	DuplicateCount int64
	DuplicateRate  float64
}

// Stats returns cumulative statistics.
func (d *Deduplicator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	var rate float64
	if d.totalSeen > 0 {
		rate = float64(d.duplicates) / float64(d.totalSeen) * 100
	}
	return Stats{
		TotalSeen:      d.totalSeen,
		DuplicateCount: d.duplicates,
		DuplicateRate:  rate,
	}
}

// Reset clears the statistics.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.totalSeen = 0
	d.duplicates = 0
}

// Dates returns the distinct start dates present in events, for
// fetching persisted candidates scoped to the batch.
func Dates(events []model.EventRecord) []string {
	seen := make(map[string]bool)
	var dates []string
	for i := range events {
		day := events[i].Day()
		if !seen[day] {
			seen[day] = true
			dates = append(dates, day)
		}
	}
	return dates
}
