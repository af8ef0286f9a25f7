// Package model defines the canonical data shapes for EventFlow.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Known source tags. The pipeline accepts any tag, these are the ones the
// upstream collaborators emit today.
const (
	SourceWienInfo  = "wien.info"
	SourceAISearch  = "ai-search"
	SourceScraper   = "scraper"
	SourceCommunity = "community"
	SourceRSS       = "rss"
)

// RawEvent is the loosely typed input contract shared by every source
// collaborator (scrapers, AI search, official feeds, user submissions).
// StartDateTime carries either an ISO-8601 string, a bare date, or a
// date plus an all-day marker; programmatic callers that already hold a
// parsed time set StartAt instead.
type RawEvent struct {
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	StartDateTime string     `json:"start_date_time"`
	StartAt       *time.Time `json:"-"`
	EndDateTime   string     `json:"end_date_time,omitempty"`
	VenueName     string     `json:"venue_name"`
	VenueAddress  string     `json:"venue_address,omitempty"`
	VenueCity     string     `json:"venue_city,omitempty"`
	Category      string     `json:"category,omitempty"`
	Price         string     `json:"price,omitempty"`
	TicketURL     string     `json:"ticket_url,omitempty"`
	WebsiteURL    string     `json:"website_url,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	Source        string     `json:"source"`
	SourceID      string     `json:"source_id,omitempty"`
	SourceURL     string     `json:"source_url,omitempty"`
	Latitude      *float64   `json:"latitude,omitempty"`
	Longitude     *float64   `json:"longitude,omitempty"`
}

// EventRecord is the canonical event shape produced by normalization.
// ID is a stable derivation of (title, venue, start, city), so the same
// real-world event always maps to the same record regardless of source.
// Source holds a comma-joined sorted tag set; merging records unions it.
type EventRecord struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Category     string     `json:"category"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	VenueID      string     `json:"venue_id,omitempty"`
	VenueName    string     `json:"venue_name"`
	VenueAddress string     `json:"venue_address,omitempty"`
	City         string     `json:"city"`
	Price        string     `json:"price,omitempty"`
	WebsiteURL   string     `json:"website_url,omitempty"`
	BookingURL   string     `json:"booking_url,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	Source       string     `json:"source"`
	SourceURL    string     `json:"source_url,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
}

// AllDay reports whether the event was normalized from an all-day marker.
// The sentinel is one second past midnight so a genuine midnight event
// stays distinguishable.
func (e *EventRecord) AllDay() bool {
	h, m, s := e.StartAt.Clock()
	return h == 0 && m == 0 && s == 1
}

// Day returns the calendar date of the event start as YYYY-MM-DD.
func (e *EventRecord) Day() string {
	return e.StartAt.Format("2006-01-02")
}

// ElapsesAt returns the moment after which the event is over: the explicit
// end time when present, otherwise the end of the event's calendar day.
func (e *EventRecord) ElapsesAt() time.Time {
	if e.EndAt != nil {
		return *e.EndAt
	}
	y, m, d := e.StartAt.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, e.StartAt.Location())
}

// EventID derives the stable event identity from the natural key
// (title, venue name, start time, city). Case and surrounding whitespace
// do not affect the result.
func EventID(title, venue string, start time.Time, city string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(venue))))
	h.Write([]byte{'|'})
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(city))))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ParseSources splits a comma-joined source tag set.
func ParseSources(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// UnionSources merges two comma-joined source tag sets into a sorted,
// de-duplicated comma-joined set. Commutative by construction.
func UnionSources(a, b string) string {
	set := make(map[string]struct{})
	for _, s := range ParseSources(a) {
		set[s] = struct{}{}
	}
	for _, s := range ParseSources(b) {
		set[s] = struct{}{}
	}
	tags := make([]string, 0, len(set))
	for s := range set {
		tags = append(tags, s)
	}
	sort.Strings(tags)
	return strings.Join(tags, ",")
}

// VenueRecord identifies a venue. Exactly one record exists per distinct
// (name, city) pair; Slug is unique and derived from name and city.
type VenueRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	City    string `json:"city"`
	Slug    string `json:"slug"`
}
