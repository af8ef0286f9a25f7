package normalize

import (
	"testing"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

func rawEvent() model.RawEvent {
	return model.RawEvent{
		Title:         "Boiler Room Night",
		StartDateTime: "2025-09-02T22:00:00",
		VenueName:     "Flex",
		Source:        model.SourceScraper,
	}
}

func TestNormalizeValid(t *testing.T) {
	n := New("Wien")
	out := n.Normalize(rawEvent())
	if !out.Valid() {
		t.Fatalf("expected valid outcome, got rejection %q", out.Reason)
	}

	ev := out.Event
	if ev.City != "Wien" {
		t.Errorf("default city not applied: %q", ev.City)
	}
	if ev.Category != DefaultCategory {
		t.Errorf("default category not applied: %q", ev.Category)
	}
	if ev.ID == "" {
		t.Error("id must be derived")
	}
	if ev.StartAt.Hour() != 22 {
		t.Errorf("unexpected start %v", ev.StartAt)
	}
}

func TestNormalizeCanonicalizesCategory(t *testing.T) {
	n := New("Wien")

	for _, variant := range []string{"techno", "House", " DJ Sets/Electronic "} {
		raw := rawEvent()
		raw.Category = variant
		out := n.Normalize(raw)
		if !out.Valid() {
			t.Fatalf("expected valid outcome for %q, got rejection %q", variant, out.Reason)
		}
		if out.Event.Category != "DJ Sets/Electronic" {
			t.Errorf("%q should normalize to the canonical category, got %q", variant, out.Event.Category)
		}
	}

	unknown := rawEvent()
	unknown.Category = "Puppet Theatre"
	if out := n.Normalize(unknown); out.Event.Category != "Puppet Theatre" {
		t.Errorf("unknown categories must pass through, got %q", out.Event.Category)
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := New("Wien")

	noTitle := rawEvent()
	noTitle.Title = "  "
	if out := n.Normalize(noTitle); out.Valid() || out.Reason != ReasonMissingTitle {
		t.Errorf("expected missing-title rejection, got %+v", out)
	}

	noVenue := rawEvent()
	noVenue.VenueName = ""
	if out := n.Normalize(noVenue); out.Valid() || out.Reason != ReasonMissingVenue {
		t.Errorf("expected missing-venue rejection, got %+v", out)
	}

	badTime := rawEvent()
	badTime.StartDateTime = "next friday maybe"
	if out := n.Normalize(badTime); out.Valid() || out.Reason != ReasonBadStartTime {
		t.Errorf("expected bad-start-time rejection, got %+v", out)
	}
}

func TestNormalizeAllDayMarker(t *testing.T) {
	n := New("Wien")

	for _, value := range []string{"2025-09-02 ganztags", "ganztags 2025-09-02", "2025-09-02"} {
		raw := rawEvent()
		raw.StartDateTime = value
		out := n.Normalize(raw)
		if !out.Valid() {
			t.Fatalf("%q: expected valid outcome, got %q", value, out.Reason)
		}
		h, m, s := out.Event.StartAt.Clock()
		if h != 0 || m != 0 || s != 1 {
			t.Errorf("%q: expected 00:00:01 sentinel, got %02d:%02d:%02d", value, h, m, s)
		}
		if !out.Event.AllDay() {
			t.Errorf("%q: AllDay() should report true", value)
		}
	}
}

func TestMidnightIsNotAllDay(t *testing.T) {
	n := New("Wien")
	raw := rawEvent()
	raw.StartDateTime = "2025-09-02T00:00:00"
	out := n.Normalize(raw)
	if !out.Valid() {
		t.Fatal(out.Reason)
	}
	if out.Event.AllDay() {
		t.Error("a genuine midnight event must not read as all-day")
	}
}

func TestNormalizeStartAtOverride(t *testing.T) {
	n := New("Wien")
	at := time.Date(2025, 9, 2, 21, 30, 0, 0, time.UTC)

	raw := rawEvent()
	raw.StartDateTime = ""
	raw.StartAt = &at

	out := n.Normalize(raw)
	if !out.Valid() {
		t.Fatal(out.Reason)
	}
	if !out.Event.StartAt.Equal(at) {
		t.Errorf("expected programmatic start %v, got %v", at, out.Event.StartAt)
	}
}

func TestStableID(t *testing.T) {
	n := New("Wien")

	a := n.Normalize(rawEvent())
	b := n.Normalize(rawEvent())
	if a.Event.ID != b.Event.ID {
		t.Error("same natural key must derive the same id")
	}

	capitalized := rawEvent()
	capitalized.Title = "BOILER ROOM NIGHT"
	c := n.Normalize(capitalized)
	if a.Event.ID != c.Event.ID {
		t.Error("id must be case-insensitive over the natural key")
	}
}

func TestNormalizeBatchSplit(t *testing.T) {
	n := New("Wien")

	bad := rawEvent()
	bad.VenueName = ""

	events, rejected := n.NormalizeBatch([]model.RawEvent{rawEvent(), bad})
	if len(events) != 1 || len(rejected) != 1 {
		t.Fatalf("expected 1 survivor and 1 rejection, got %d/%d", len(events), len(rejected))
	}
	if rejected[0].Reason != ReasonMissingVenue {
		t.Errorf("unexpected rejection reason %q", rejected[0].Reason)
	}
}

func TestNormalizeEndTime(t *testing.T) {
	n := New("Wien")
	raw := rawEvent()
	raw.EndDateTime = "2025-09-03T04:00:00"

	out := n.Normalize(raw)
	if !out.Valid() {
		t.Fatal(out.Reason)
	}
	if out.Event.EndAt == nil || out.Event.EndAt.Hour() != 4 {
		t.Errorf("end time not parsed: %+v", out.Event.EndAt)
	}
}
