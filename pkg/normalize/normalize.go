// Package normalize converts raw, schema-loose input records into the
// canonical event shape. Structurally invalid records are rejected with
// a reason, never silently coerced and never by panic.
package normalize

import (
	"strings"
	"time"

	"github.com/eventflow/eventflow/internal/model"
	"github.com/eventflow/eventflow/pkg/cache"
)

// RejectReason says why a raw record was rejected.
type RejectReason string

const (
	ReasonMissingTitle RejectReason = "missing title"
	ReasonMissingVenue RejectReason = "missing venue name"
	ReasonBadStartTime RejectReason = "unparseable start time"
)

// Outcome is the validated form of one raw record: either a canonical
// event or a rejection reason.
type Outcome struct {
	Event  *model.EventRecord
	Reason RejectReason
}

// Valid reports whether the record survived normalization.
func (o Outcome) Valid() bool {
	return o.Event != nil
}

// Rejection pairs a rejected raw record with its reason, for callers
// that count or log drops.
type Rejection struct {
	Raw    model.RawEvent
	Reason RejectReason
}

// DefaultCategory is assigned when a raw record carries none.
const DefaultCategory = "Event"

// Normalizer turns RawEvent input into EventRecords.
type Normalizer struct {
	// DefaultCity fills records whose venue_city is absent.
	DefaultCity string

	// Location interprets naive timestamps. Defaults to time.Local.
	Location *time.Location
}

// New creates a normalizer for the given default city.
func New(defaultCity string) *Normalizer {
	return &Normalizer{DefaultCity: defaultCity, Location: time.Local}
}

// Normalize validates and converts one raw record.
func (n *Normalizer) Normalize(raw model.RawEvent) Outcome {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return Outcome{Reason: ReasonMissingTitle}
	}
	venue := strings.TrimSpace(raw.VenueName)
	if venue == "" {
		return Outcome{Reason: ReasonMissingVenue}
	}

	start, ok := n.parseStart(raw)
	if !ok {
		return Outcome{Reason: ReasonBadStartTime}
	}

	city := strings.TrimSpace(raw.VenueCity)
	if city == "" {
		city = n.DefaultCity
	}
	// Canonical category name, so "techno" and "house" land in the
	// same per-category cache entry as "DJ Sets/Electronic".
	category := cache.NormalizeCategory(raw.Category)
	if category == "" {
		category = DefaultCategory
	}

	ev := &model.EventRecord{
		ID:           model.EventID(title, venue, start, city),
		Title:        title,
		Description:  strings.TrimSpace(raw.Description),
		Category:     category,
		StartAt:      start,
		VenueName:    venue,
		VenueAddress: strings.TrimSpace(raw.VenueAddress),
		City:         city,
		Price:        strings.TrimSpace(raw.Price),
		WebsiteURL:   strings.TrimSpace(raw.WebsiteURL),
		BookingURL:   strings.TrimSpace(raw.TicketURL),
		ImageURL:     strings.TrimSpace(raw.ImageURL),
		Source:       strings.TrimSpace(raw.Source),
		SourceURL:    strings.TrimSpace(raw.SourceURL),
		Latitude:     raw.Latitude,
		Longitude:    raw.Longitude,
	}

	if end, ok := n.parseTime(raw.EndDateTime); ok {
		ev.EndAt = &end
	}

	return Outcome{Event: ev}
}

// NormalizeBatch converts a slice of raw records, splitting survivors
// from rejections.
func (n *Normalizer) NormalizeBatch(raws []model.RawEvent) ([]model.EventRecord, []Rejection) {
	events := make([]model.EventRecord, 0, len(raws))
	var rejected []Rejection

	for _, raw := range raws {
		outcome := n.Normalize(raw)
		if !outcome.Valid() {
			rejected = append(rejected, Rejection{Raw: raw, Reason: outcome.Reason})
			continue
		}
		events = append(events, *outcome.Event)
	}
	return events, rejected
}

// allDayMarkers are the recognized spellings of "runs all day".
var allDayMarkers = map[string]bool{
	"ganztags":  true,
	"ganztägig": true,
	"all-day":   true,
	"allday":    true,
	"all day":   true,
}

// timeLayouts are tried in order for timestamped input.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
}

const dateLayout = "2006-01-02"

// parseStart resolves the start time from StartAt (programmatic
// callers) or StartDateTime (string input).
func (n *Normalizer) parseStart(raw model.RawEvent) (time.Time, bool) {
	if raw.StartAt != nil {
		return *raw.StartAt, true
	}
	return n.parseTime(raw.StartDateTime)
}

// parseTime parses one of: an ISO-8601-ish timestamp, a bare date, or a
// date combined with an all-day marker. Bare dates and all-day markers
// map to the 00:00:01 sentinel, one second past midnight, so they stay
// distinguishable from genuine midnight events.
func (n *Normalizer) parseTime(value string) (time.Time, bool) {
	loc := n.Location
	if loc == nil {
		loc = time.Local
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if layout == time.RFC3339 {
			if t, err := time.Parse(layout, value); err == nil {
				return t, true
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}

	if d, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return allDaySentinel(d), true
	}

	// "2025-09-02 ganztags" or "ganztags 2025-09-02"
	fields := strings.Fields(strings.ToLower(value))
	if len(fields) == 2 {
		var date, marker string
		if allDayMarkers[fields[0]] {
			marker, date = fields[0], fields[1]
		} else if allDayMarkers[fields[1]] {
			date, marker = fields[0], fields[1]
		}
		if marker != "" {
			if d, err := time.ParseInLocation(dateLayout, date, loc); err == nil {
				return allDaySentinel(d), true
			}
		}
	}

	return time.Time{}, false
}

func allDaySentinel(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 1, 0, day.Location())
}
