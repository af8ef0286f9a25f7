// Package repo provides the in-memory reference implementation of the
// pipeline's storage interfaces. It enforces the same natural-key
// uniqueness a relational backend would, so pipeline behavior against
// it matches production storage. Used by tests and the dry-run tooling;
// production deployments plug in their own backend.
package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/eventflow/eventflow/internal/model"
	"github.com/eventflow/eventflow/pkg/dedup"
	eferrors "github.com/eventflow/eventflow/pkg/errors"
)

// Memory stores events and venues in process memory, safe for
// concurrent use.
type Memory struct {
	mu sync.RWMutex

	events   map[string]*model.EventRecord // id -> record
	byNatKey map[string]string             // dedup natural key -> id
	venues   map[string]*model.VenueRecord // lower(name)|lower(city) -> record
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		events:   make(map[string]*model.EventRecord),
		byNatKey: make(map[string]string),
		venues:   make(map[string]*model.VenueRecord),
	}
}

// Ping always succeeds; the in-memory store cannot be down.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// UpsertEvent inserts ev or merges it into the record with the same id.
// A different id hitting the same (title, date, city) natural key is a
// unique-constraint violation, reported as a duplicate-key error the
// way a relational unique index would.
func (m *Memory) UpsertEvent(ctx context.Context, ev *model.EventRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.events[ev.ID]; ok {
		merged := mergeRecords(*existing, *ev)
		m.events[ev.ID] = &merged
		return false, nil
	}

	natKey := dedup.Key(*ev)
	if otherID, taken := m.byNatKey[natKey]; taken && otherID != ev.ID {
		return false, eferrors.DuplicateKey(otherID)
	}

	clone := *ev
	m.events[ev.ID] = &clone
	m.byNatKey[natKey] = ev.ID
	return true, nil
}

// FindByCityDates returns the events of city on the given dates,
// ordered by start time.
func (m *Memory) FindByCityDates(ctx context.Context, city string, dates []string) ([]model.EventRecord, error) {
	wanted := make(map[string]bool, len(dates))
	for _, d := range dates {
		wanted[d] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.EventRecord
	for _, ev := range m.events {
		if strings.EqualFold(ev.City, city) && wanted[ev.Day()] {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

// FindUnlinked returns the events of city on the given dates that have
// a venue name but no venue id.
func (m *Memory) FindUnlinked(ctx context.Context, city string, dates []string) ([]model.EventRecord, error) {
	all, err := m.FindByCityDates(ctx, city, dates)
	if err != nil {
		return nil, err
	}
	var out []model.EventRecord
	for _, ev := range all {
		if ev.VenueID == "" && ev.VenueName != "" {
			out = append(out, ev)
		}
	}
	return out, nil
}

// LinkVenue sets the venue id of one stored event.
func (m *Memory) LinkVenue(ctx context.Context, eventID, venueID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[eventID]
	if !ok {
		return eferrors.New(eferrors.CodeInvalidInput, "no such event").WithContext("event_id", eventID)
	}
	ev.VenueID = venueID
	return nil
}

// FindByNameCity looks a venue up by its case-insensitive (name, city)
// identity. A nil record means not found.
func (m *Memory) FindByNameCity(ctx context.Context, name, city string) (*model.VenueRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, ok := m.venues[venueKey(name, city)]; ok {
		clone := *v
		return &clone, nil
	}
	return nil, nil
}

// Create stores a new venue.
func (m *Memory) Create(ctx context.Context, v *model.VenueRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := venueKey(v.Name, v.City)
	if _, taken := m.venues[key]; taken {
		return eferrors.DuplicateKey(key)
	}
	clone := *v
	m.venues[key] = &clone
	return nil
}

// EventCount returns the number of stored events.
func (m *Memory) EventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// VenueCount returns the number of stored venues.
func (m *Memory) VenueCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.venues)
}

// Event returns a copy of the stored event with the given id.
func (m *Memory) Event(id string) (model.EventRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ev, ok := m.events[id]; ok {
		return *ev, true
	}
	return model.EventRecord{}, false
}

func venueKey(name, city string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(city))
}

// mergeRecords applies the field-level merge used on id collisions:
// empty fields fill, the longer description wins, sources union.
func mergeRecords(existing, incoming model.EventRecord) model.EventRecord {
	out := existing

	if len(incoming.Description) > len(out.Description) {
		out.Description = incoming.Description
	}
	if out.Category == "" {
		out.Category = incoming.Category
	}
	if out.VenueID == "" {
		out.VenueID = incoming.VenueID
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
	if out.EndAt == nil {
		out.EndAt = incoming.EndAt
	}
	if out.Latitude == nil || out.Longitude == nil {
		out.Latitude = incoming.Latitude
		out.Longitude = incoming.Longitude
	}
	out.Source = model.UnionSources(out.Source, incoming.Source)

	return out
}
