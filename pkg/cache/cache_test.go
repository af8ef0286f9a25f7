package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

func testEvent(title string, start time.Time) model.EventRecord {
	return model.EventRecord{
		ID:        model.EventID(title, "Flex", start, "Wien"),
		Title:     title,
		Category:  "Clubs/Discos",
		StartAt:   start,
		VenueName: "Flex",
		City:      "Wien",
		Source:    model.SourceScraper,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := testEvent("Dub Club", time.Now().Add(24*time.Hour))
	if err := s.Set(ctx, "wien_2025-09-02_all", []model.EventRecord{ev}, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get(ctx, "wien_2025-09-02_all")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0].Title != "Dub Club" {
		t.Errorf("unexpected events %+v", got)
	}
}

func TestMemoryStoreGetReturnsDetachedCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := testEvent("Dub Club", time.Now().Add(24*time.Hour))
	s.Set(ctx, "k", []model.EventRecord{ev}, time.Minute)

	got, ok := s.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit")
	}
	got[0].Title = "Mutated"

	again, _ := s.Get(ctx, "k")
	if again[0].Title != "Dub Club" {
		t.Errorf("mutating a Get result must not change the entry, got %q", again[0].Title)
	}
}

func TestMemoryStoreLazyExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := testEvent("Dub Club", time.Now().Add(24*time.Hour))
	s.Set(ctx, "k", []model.EventRecord{ev}, 10*time.Millisecond)

	time.Sleep(25 * time.Millisecond)

	if _, ok := s.Get(ctx, "k"); ok {
		t.Error("expired entry must read as absent")
	}
	// Lazy expiry deletes on read
	if s.Size(ctx) != 0 {
		t.Errorf("expected size 0 after lazy expiry, got %d", s.Size(ctx))
	}
}

func TestMemoryStoreLRUEviction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithCapacity(3))

	ev := testEvent("e", time.Now().Add(24*time.Hour))
	for i := 0; i < 3; i++ {
		s.Set(ctx, fmt.Sprintf("k%d", i), []model.EventRecord{ev}, time.Minute)
	}

	// Touch k0 so k1 becomes least recently accessed.
	s.Get(ctx, "k0")

	s.Set(ctx, "k3", []model.EventRecord{ev}, time.Minute)

	if s.Has(ctx, "k1") {
		t.Error("k1 should have been evicted as least recently accessed")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if !s.Has(ctx, k) {
			t.Errorf("%s should survive eviction", k)
		}
	}
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := testEvent("e", time.Now().Add(24*time.Hour))
	s.Set(ctx, "short", []model.EventRecord{ev}, time.Nanosecond)
	s.Set(ctx, "long", []model.EventRecord{ev}, time.Hour)

	removed := s.Sweep(time.Now().Add(time.Second))
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if !s.Has(ctx, "long") {
		t.Error("live entry swept")
	}
}

func TestMemoryStoreSweepElapsedEvents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	past := time.Now().Add(-48 * time.Hour)
	s.Set(ctx, "over", []model.EventRecord{testEvent("gone", past)}, time.Hour)

	// An explicit empty result must survive the elapsed-events pass.
	s.Set(ctx, "empty", nil, time.Hour)

	removed := s.Sweep(time.Now())
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
	if s.Has(ctx, "over") {
		t.Error("entry with fully elapsed events should be swept before TTL")
	}
	if !s.Has(ctx, "empty") {
		t.Error("cached empty result must only expire via TTL")
	}
}

func TestEmptyResultDistinctFromAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Set(ctx, "empty", []model.EventRecord{}, time.Minute)

	events, ok := s.Get(ctx, "empty")
	if !ok {
		t.Fatal("cached empty result must be a hit")
	}
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", events)
	}

	if _, ok := s.Get(ctx, "never-written"); ok {
		t.Error("absent key must miss")
	}
}

func TestGetForCategoriesPartition(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	start := time.Now().Add(24 * time.Hour)
	events := []model.EventRecord{testEvent("a", start), testEvent("b", start.Add(time.Hour))}

	if err := SetForCategory(ctx, s, "Ibiza", "2025-09-02", "Clubs-Discos", events, time.Minute); err != nil {
		t.Fatal(err)
	}

	lookup := GetForCategories(ctx, s, "Ibiza", "2025-09-02", []string{"Clubs-Discos", "DJ Sets-Electronic"})

	cached, ok := lookup.CachedEvents["Clubs/Discos"]
	if !ok || len(cached) != 2 {
		t.Fatalf("expected 2 cached Clubs/Discos events, got %v", lookup.CachedEvents)
	}
	if len(lookup.MissingCategories) != 1 || lookup.MissingCategories[0] != "DJ Sets/Electronic" {
		t.Errorf("expected missing [DJ Sets/Electronic], got %v", lookup.MissingCategories)
	}

	// Exact partition: no overlap, no omission.
	for _, missing := range lookup.MissingCategories {
		if _, dup := lookup.CachedEvents[missing]; dup {
			t.Errorf("category %q reported both cached and missing", missing)
		}
	}
	if len(lookup.CachedEvents)+len(lookup.MissingCategories) != 2 {
		t.Errorf("partition does not cover every requested category: %+v", lookup)
	}

	info := lookup.CacheInfo["Clubs/Discos"]
	if !info.FromCache || info.EventCount != 2 {
		t.Errorf("unexpected cache info %+v", info)
	}
}

func TestGetForCategoriesCachedEmpty(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := SetForCategory(ctx, s, "Wien", "2025-09-02", "Bars", nil, time.Minute); err != nil {
		t.Fatal(err)
	}

	lookup := GetForCategories(ctx, s, "Wien", "2025-09-02", []string{"Bars"})

	info := lookup.CacheInfo["Bars"]
	if !info.FromCache || info.EventCount != 0 {
		t.Errorf("cached empty result must report fromCache=true, eventCount=0, got %+v", info)
	}
	if len(lookup.MissingCategories) != 0 {
		t.Errorf("cached empty category reported missing: %v", lookup.MissingCategories)
	}
}

func TestMemoryStoreClearAndSize(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ev := testEvent("e", time.Now().Add(24*time.Hour))
	s.Set(ctx, "a", []model.EventRecord{ev}, time.Minute)
	s.Set(ctx, "b", []model.EventRecord{ev}, time.Minute)

	if s.Size(ctx) != 2 {
		t.Errorf("expected size 2, got %d", s.Size(ctx))
	}
	s.Clear(ctx)
	if s.Size(ctx) != 0 {
		t.Errorf("expected size 0 after clear, got %d", s.Size(ctx))
	}
}
