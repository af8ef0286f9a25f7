// Package daybucket maintains one mergeable bucket of events per
// (city, date). Buckets are owned exclusively by the Engine and mutated
// only through UpsertDayEvents, whose field-level merge is idempotent so
// overlapping imports converge on the same record.
package daybucket

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

// Bucket is a read-only snapshot of the merged events for one city and
// calendar date.
type Bucket struct {
	City          string
	Date          string
	Events        map[string]model.EventRecord
	CategoryIndex map[string][]string // category -> sorted event ids
	UpdatedAt     time.Time
}

type bucket struct {
	city      string
	date      string
	events    map[string]model.EventRecord
	updatedAt time.Time
	expiresAt time.Time
}

// Engine holds the day buckets.
type Engine struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	loc     *time.Location
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the location used to compute end-of-day expiry.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithLogger sets the sweep logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		buckets: make(map[string]*bucket),
		loc:     time.Local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func bucketKey(city, date string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "|" + date
}

// UpsertDayEvents merges newEvents into the bucket for (city, date).
// Events whose stable id is already present are merged field by field;
// new ids are inserted. Events that do not fall on the given date are
// ignored.
func (e *Engine) UpsertDayEvents(city, date string, newEvents []model.EventRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := bucketKey(city, date)
	b, ok := e.buckets[key]
	if ok && !b.expiresAt.After(time.Now()) {
		b = nil
		ok = false
	}
	if !ok {
		b = &bucket{
			city:      city,
			date:      date,
			events:    make(map[string]model.EventRecord),
			expiresAt: e.endOfDay(date),
		}
		e.buckets[key] = b
	}

	for _, ev := range newEvents {
		if ev.Day() != date {
			continue
		}
		if ev.ID == "" {
			ev.ID = model.EventID(ev.Title, ev.VenueName, ev.StartAt, ev.City)
		}
		if existing, found := b.events[ev.ID]; found {
			b.events[ev.ID] = mergeEvent(existing, ev)
		} else {
			b.events[ev.ID] = ev
		}
	}
	b.updatedAt = time.Now()
	b.expiresAt = e.bucketExpiry(b)
}

// GetDayEvents returns a snapshot of the bucket for (city, date), or
// absent when no bucket exists or it has expired.
func (e *Engine) GetDayEvents(city, date string) (*Bucket, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.buckets[bucketKey(city, date)]
	if !ok || !b.expiresAt.After(time.Now()) {
		return nil, false
	}

	snap := &Bucket{
		City:          b.city,
		Date:          b.date,
		Events:        make(map[string]model.EventRecord, len(b.events)),
		CategoryIndex: make(map[string][]string),
		UpdatedAt:     b.updatedAt,
	}
	for id, ev := range b.events {
		snap.Events[id] = ev
		snap.CategoryIndex[ev.Category] = append(snap.CategoryIndex[ev.Category], id)
	}
	for cat := range snap.CategoryIndex {
		sort.Strings(snap.CategoryIndex[cat])
	}
	return snap, true
}

// Sweep removes expired buckets and returns how many were dropped.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for key, b := range e.buckets {
		if !b.expiresAt.After(now) {
			delete(e.buckets, key)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Debug("day bucket sweep", "removed", removed)
	}
	return removed
}

// Len returns the number of live buckets.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.buckets)
}

// endOfDay returns 23:59:59 local time for a YYYY-MM-DD date. An
// unparseable date falls back to 24h from now.
func (e *Engine) endOfDay(date string) time.Time {
	d, err := time.ParseInLocation("2006-01-02", date, e.loc)
	if err != nil {
		return time.Now().Add(24 * time.Hour)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, e.loc)
}

// bucketExpiry is the end of the represented day, pulled earlier only
// when every event carries an explicit end time that elapses sooner.
func (e *Engine) bucketExpiry(b *bucket) time.Time {
	eod := e.endOfDay(b.date)
	if len(b.events) == 0 {
		return eod
	}

	var latest time.Time
	for _, ev := range b.events {
		if ev.EndAt == nil {
			return eod
		}
		if ev.EndAt.After(latest) {
			latest = *ev.EndAt
		}
	}
	if latest.Before(eod) {
		return latest
	}
	return eod
}

// mergeEvent reconciles an incoming update with the stored record for
// the same event id. A non-empty incoming value fills an empty existing
// field, the longer description wins, values already set are preserved,
// and the source tag set is unioned.
func mergeEvent(existing, incoming model.EventRecord) model.EventRecord {
	out := existing

	if out.Title == "" {
		out.Title = incoming.Title
	}
	if len(incoming.Description) > len(out.Description) {
		out.Description = incoming.Description
	}
	if out.Category == "" {
		out.Category = incoming.Category
	}
	if out.EndAt == nil {
		out.EndAt = incoming.EndAt
	}
	if out.VenueID == "" {
		out.VenueID = incoming.VenueID
	}
	if out.VenueName == "" {
		out.VenueName = incoming.VenueName
	}
	if out.VenueAddress == "" {
		out.VenueAddress = incoming.VenueAddress
	}
	if out.Price == "" {
		out.Price = incoming.Price
	}
	if out.WebsiteURL == "" {
		out.WebsiteURL = incoming.WebsiteURL
	}
	if out.BookingURL == "" {
		out.BookingURL = incoming.BookingURL
	}
	if out.ImageURL == "" {
		out.ImageURL = incoming.ImageURL
	}
	if out.SourceURL == "" {
		out.SourceURL = incoming.SourceURL
	}
	if out.Latitude == nil {
		out.Latitude = incoming.Latitude
	}
	if out.Longitude == nil {
		out.Longitude = incoming.Longitude
	}
	out.Source = model.UnionSources(existing.Source, incoming.Source)

	return out
}
