package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eventflow/eventflow/internal/model"
)

// Store is the cache contract shared by the in-memory and Redis tiers.
// A nil boolean from Get means the key is logically absent, whether it
// was never written, expired, or evicted - callers cannot tell apart.
type Store interface {
	Set(ctx context.Context, key string, events []model.EventRecord, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]model.EventRecord, bool)
	Has(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) int
}

// DefaultCapacity bounds the in-memory store when no capacity is given.
const DefaultCapacity = 1000

type entry struct {
	key       string
	events    []model.EventRecord
	writtenAt time.Time
	ttl       time.Duration
	elem      *list.Element // position in the access-order list
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.writtenAt) > e.ttl
}

// MemoryStore is an in-process TTL+LRU store. Eviction is by least
// recent access, tracked independently of write time. Expiry is lazy on
// Get plus a periodic sweep; a second sweep pass drops entries whose
// contained events have all elapsed even if the nominal TTL has not.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*entry
	access   *list.List // most recently accessed at front
	capacity int
	logger   *slog.Logger

	hits   int64
	misses int64
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithCapacity overrides the default key capacity.
func WithCapacity(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger used by sweeps.
func WithLogger(l *slog.Logger) MemoryOption {
	return func(s *MemoryStore) { s.logger = l }
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:  make(map[string]*entry),
		access:   list.New(),
		capacity: DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores events under key. Inserting into a full store evicts the
// least-recently-accessed entry.
func (s *MemoryStore) Set(_ context.Context, key string, events []model.EventRecord, ttl time.Duration) error {
	// Store a non-nil slice so a cached empty result stays
	// distinguishable from an absent key.
	if events == nil {
		events = []model.EventRecord{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.events = events
		e.writtenAt = time.Now()
		e.ttl = ttl
		s.access.MoveToFront(e.elem)
		return nil
	}

	if len(s.entries) >= s.capacity {
		s.evictLRULocked()
	}

	e := &entry{key: key, events: events, writtenAt: time.Now(), ttl: ttl}
	e.elem = s.access.PushFront(e)
	s.entries[key] = e
	return nil
}

// Get returns the cached events for key. Expired entries are deleted on
// the spot and reported as absent; a hit refreshes the LRU position.
// The returned slice is a copy, so callers cannot corrupt the entry.
func (s *MemoryStore) Get(_ context.Context, key string) ([]model.EventRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		s.removeLocked(e)
		s.misses++
		return nil, false
	}

	s.access.MoveToFront(e.elem)
	s.hits++
	out := make([]model.EventRecord, len(e.events))
	copy(out, e.events)
	return out, true
}

// Has reports whether key is present and live, without promoting it in
// the access order.
func (s *MemoryStore) Has(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		s.removeLocked(e)
		return false
	}
	return true
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.removeLocked(e)
	}
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	s.access.Init()
	return nil
}

// Size returns the number of live entries. Expired-but-unswept entries
// count until the next sweep or access.
func (s *MemoryStore) Size(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and entries whose events have all
// elapsed. Entries caching an explicit empty result are only subject to
// TTL expiry. Returns the number of removed entries.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, e := range s.entries {
		if e.expired(now) {
			s.removeLocked(e)
			removed++
			continue
		}
		if len(e.events) > 0 && allElapsed(e.events, now) {
			s.removeLocked(e)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.Sweep(now); n > 0 {
					s.logger.Debug("cache sweep", "removed", n)
				}
			}
		}
	}()
}

// Stats reports hit/miss counters.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries: len(s.entries),
		Hits:    s.hits,
		Misses:  s.misses,
	}
}

// Stats contains cache statistics.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

func (s *MemoryStore) evictLRULocked() {
	tail := s.access.Back()
	if tail == nil {
		return
	}
	s.removeLocked(tail.Value.(*entry))
}

func (s *MemoryStore) removeLocked(e *entry) {
	s.access.Remove(e.elem)
	delete(s.entries, e.key)
}

func allElapsed(events []model.EventRecord, now time.Time) bool {
	for i := range events {
		if events[i].ElapsesAt().After(now) {
			return false
		}
	}
	return true
}
