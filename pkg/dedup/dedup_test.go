package dedup

import (
	"testing"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

var start = time.Date(2025, 9, 2, 22, 0, 0, 0, time.UTC)

func event(title, venue, source string) model.EventRecord {
	return model.EventRecord{
		ID:        model.EventID(title, venue, start, "Wien"),
		Title:     title,
		StartAt:   start,
		VenueName: venue,
		City:      "Wien",
		Source:    source,
	}
}

func TestKeyIgnoresVenueFormatting(t *testing.T) {
	a := event("Vienna Calling", "Grelle Forelle", model.SourceScraper)
	b := event("vienna  calling", "GRELLE FORELLE", model.SourceAISearch)
	if Key(a) != Key(b) {
		t.Error("near-duplicates with differing venue capitalization must share a key")
	}
}

func TestKeySeparatesCities(t *testing.T) {
	a := event("Vienna Calling", "Flex", model.SourceScraper)
	b := a
	b.City = "Ibiza"
	if Key(a) == Key(b) {
		t.Error("same title and date in different cities are not duplicates")
	}
}

func TestCollapseBatchKeepsRichest(t *testing.T) {
	sparse := event("Vienna Calling", "Flex", model.SourceScraper)

	rich := event("Vienna Calling", "Flex", model.SourceAISearch)
	rich.Description = "with lineup"
	rich.Price = "20 EUR"

	out := CollapseBatch([]model.EventRecord{sparse, rich})
	if len(out) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(out))
	}
	if out[0].Price != "20 EUR" || out[0].Description != "with lineup" {
		t.Errorf("sparser duplicate won: %+v", out[0])
	}
	if out[0].Source != "ai-search,scraper" {
		t.Errorf("sources not unioned: %q", out[0].Source)
	}
}

func TestPartitionAgainstPersisted(t *testing.T) {
	d := New()

	persisted := []model.EventRecord{event("Vienna Calling", "Flex", model.SourceWienInfo)}

	fresh := event("Something Else", "Flex", model.SourceScraper)
	dup := event("VIENNA CALLING", "flex", model.SourceScraper)

	unique, skipped := d.Partition([]model.EventRecord{fresh, dup}, persisted)

	if len(unique) != 1 || unique[0].Title != "Something Else" {
		t.Errorf("unexpected unique set %+v", unique)
	}
	if len(skipped) != 1 {
		t.Errorf("expected 1 skipped duplicate, got %d", len(skipped))
	}

	stats := d.Stats()
	if stats.TotalSeen != 2 || stats.DuplicateCount != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestPartitionCollapsesBatchFirst(t *testing.T) {
	d := New()

	a := event("Vienna Calling", "Flex", model.SourceScraper)
	b := event("vienna calling", "Flex ", model.SourceRSS)

	unique, _ := d.Partition([]model.EventRecord{a, b}, nil)
	if len(unique) != 1 {
		t.Fatalf("batch-internal duplicates must collapse before comparison, got %d", len(unique))
	}
}

func TestDates(t *testing.T) {
	a := event("A", "Flex", model.SourceScraper)
	b := event("B", "Flex", model.SourceScraper)
	c := b
	c.StartAt = start.Add(48 * time.Hour)

	dates := Dates([]model.EventRecord{a, b, c})
	if len(dates) != 2 {
		t.Errorf("expected 2 distinct dates, got %v", dates)
	}
}
