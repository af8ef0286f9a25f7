package daybucket

import (
	"testing"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

func futureStart(t *testing.T) (time.Time, string) {
	t.Helper()
	tomorrow := time.Now().Add(24 * time.Hour)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 12, 0, 0, 0, time.Local)
	return start, start.Format("2006-01-02")
}

func record(title string, start time.Time, source string) model.EventRecord {
	return model.EventRecord{
		ID:        model.EventID(title, "Grelle Forelle", start, "Wien"),
		Title:     title,
		Category:  "Clubs/Discos",
		StartAt:   start,
		VenueName: "Grelle Forelle",
		City:      "Wien",
		Source:    source,
	}
}

func TestUpsertIdempotent(t *testing.T) {
	e := NewEngine()
	start, date := futureStart(t)

	ev := record("Vienna Calling", start, model.SourceScraper)
	e.UpsertDayEvents("Wien", date, []model.EventRecord{ev})
	e.UpsertDayEvents("Wien", date, []model.EventRecord{ev})

	b, ok := e.GetDayEvents("Wien", date)
	if !ok {
		t.Fatal("bucket missing")
	}
	if len(b.Events) != 1 {
		t.Errorf("idempotent upsert produced %d records, want 1", len(b.Events))
	}
}

func TestMergeConvergesEitherOrder(t *testing.T) {
	start, date := futureStart(t)

	a := record("Vienna Calling", start, model.SourceScraper)
	a.Description = "short"
	a.Price = "15 EUR"

	b := record("Vienna Calling", start, model.SourceAISearch)
	b.Description = "a much longer description of the night"
	b.WebsiteURL = "https://example.test/event"

	run := func(first, second model.EventRecord) model.EventRecord {
		e := NewEngine()
		e.UpsertDayEvents("Wien", date, []model.EventRecord{first})
		e.UpsertDayEvents("Wien", date, []model.EventRecord{second})
		bucket, ok := e.GetDayEvents("Wien", date)
		if !ok {
			t.Fatal("bucket missing")
		}
		return bucket.Events[a.ID]
	}

	ab := run(a, b)
	ba := run(b, a)

	if ab.Description != ba.Description || ab.Description != b.Description {
		t.Errorf("longer description should win both ways: %q vs %q", ab.Description, ba.Description)
	}
	if ab.Price != "15 EUR" || ba.Price != "15 EUR" {
		t.Errorf("non-empty price must survive merge: %q / %q", ab.Price, ba.Price)
	}
	if ab.WebsiteURL != b.WebsiteURL || ba.WebsiteURL != b.WebsiteURL {
		t.Errorf("website url should fill the empty side: %q / %q", ab.WebsiteURL, ba.WebsiteURL)
	}
	if ab.Source != ba.Source {
		t.Errorf("source union must be order independent: %q vs %q", ab.Source, ba.Source)
	}
	if ab.Source != "ai-search,scraper" {
		t.Errorf("expected union of source tags, got %q", ab.Source)
	}
}

func TestCategoryIndex(t *testing.T) {
	e := NewEngine()
	start, date := futureStart(t)

	club := record("Club Night", start, model.SourceScraper)
	gig := record("Jazz Gig", start.Add(time.Hour), model.SourceRSS)
	gig.ID = model.EventID(gig.Title, gig.VenueName, gig.StartAt, gig.City)
	gig.Category = "Live Music"

	e.UpsertDayEvents("Wien", date, []model.EventRecord{club, gig})

	b, ok := e.GetDayEvents("Wien", date)
	if !ok {
		t.Fatal("bucket missing")
	}
	if len(b.CategoryIndex["Clubs/Discos"]) != 1 || len(b.CategoryIndex["Live Music"]) != 1 {
		t.Errorf("unexpected category index %+v", b.CategoryIndex)
	}
}

func TestWrongDateIgnored(t *testing.T) {
	e := NewEngine()
	start, date := futureStart(t)

	other := record("Elsewhere", start.Add(72*time.Hour), model.SourceScraper)
	e.UpsertDayEvents("Wien", date, []model.EventRecord{other})

	if b, ok := e.GetDayEvents("Wien", date); ok && len(b.Events) > 0 {
		t.Errorf("event on a different day must not enter the bucket: %+v", b.Events)
	}
}

func TestExpiredBucketAbsent(t *testing.T) {
	e := NewEngine()

	yesterday := time.Now().Add(-24 * time.Hour)
	date := yesterday.Format("2006-01-02")
	e.UpsertDayEvents("Wien", date, []model.EventRecord{record("Done", yesterday, model.SourceScraper)})

	if _, ok := e.GetDayEvents("Wien", date); ok {
		t.Error("bucket past end of day must be absent")
	}

	if removed := e.Sweep(time.Now()); removed != 1 {
		t.Errorf("sweep should drop the expired bucket, removed %d", removed)
	}
}

func TestBucketKeyedPerCityDate(t *testing.T) {
	e := NewEngine()
	start, date := futureStart(t)

	wien := record("A", start, model.SourceScraper)
	ibiza := record("A", start, model.SourceScraper)
	ibiza.City = "Ibiza"
	ibiza.ID = model.EventID(ibiza.Title, ibiza.VenueName, ibiza.StartAt, ibiza.City)

	e.UpsertDayEvents("Wien", date, []model.EventRecord{wien})
	e.UpsertDayEvents("Ibiza", date, []model.EventRecord{ibiza})

	if e.Len() != 2 {
		t.Errorf("expected one bucket per (city, date), got %d", e.Len())
	}
}
