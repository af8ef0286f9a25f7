// Package venue resolves venue names to stable venue identities:
// find-or-create with exactly one id per (name, city) pair.
package venue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"

	"github.com/eventflow/eventflow/internal/model"
	eferrors "github.com/eventflow/eventflow/pkg/errors"
)

// Repository is the external venue store. Lookup-then-create is not
// atomic against it; see the concurrency note on Resolver.
type Repository interface {
	FindByNameCity(ctx context.Context, name, city string) (*model.VenueRecord, error)
	Create(ctx context.Context, v *model.VenueRecord) error
}

// Resolution is the outcome of one resolve call. IsNew is true exactly
// once per distinct (name, city).
type Resolution struct {
	ID    string
	IsNew bool
}

// Resolver finds or creates venues. A per-key mutex serializes
// concurrent resolutions of the same (name, city) within this process,
// so a single importer cannot race itself into two ids. Two separate
// processes importing the same brand-new venue can still create two
// rows; that cross-process race is accepted and mitigated by low write
// concurrency per venue key.
type Resolver struct {
	repo   Repository
	dryRun bool

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Resolver.
type Option func(*Resolver)

// DryRun makes the resolver return synthetic deterministic ids and
// never touch the repository.
func DryRun() Option {
	return func(r *Resolver) { r.dryRun = true }
}

// NewResolver creates a resolver over the given repository.
func NewResolver(repo Repository, opts ...Option) *Resolver {
	r := &Resolver{
		repo:  repo,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the venue id for (name, city), creating the venue
// when it does not exist yet.
func (r *Resolver) Resolve(ctx context.Context, name, address, city string) (Resolution, error) {
	name = strings.TrimSpace(name)
	city = strings.TrimSpace(city)
	if name == "" {
		return Resolution{}, eferrors.New(eferrors.CodeInvalidInput, "venue name is empty")
	}

	if r.dryRun {
		return Resolution{ID: syntheticID(name, city)}, nil
	}

	unlock := r.lock(venueKey(name, city))
	defer unlock()

	existing, err := r.repo.FindByNameCity(ctx, name, city)
	if err != nil {
		return Resolution{}, eferrors.Wrap(err, eferrors.CodeExternalCall, "venue lookup failed")
	}
	if existing != nil {
		return Resolution{ID: existing.ID}, nil
	}

	record := &model.VenueRecord{
		ID:      uuid.NewString(),
		Name:    name,
		Address: strings.TrimSpace(address),
		City:    city,
		Slug:    Slug(name, city),
	}
	if err := r.repo.Create(ctx, record); err != nil {
		return Resolution{}, eferrors.Wrap(err, eferrors.CodeExternalCall, "venue create failed")
	}
	return Resolution{ID: record.ID, IsNew: true}, nil
}

func (r *Resolver) lock(key string) func() {
	r.mu.Lock()
	m, ok := r.locks[key]
	if !ok {
		m = &sync.Mutex{}
		r.locks[key] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func venueKey(name, city string) string {
	return strings.ToLower(name) + "|" + strings.ToLower(city)
}

// syntheticID derives the deterministic dry-run placeholder id.
func syntheticID(name, city string) string {
	sum := sha256.Sum256([]byte(venueKey(name, city)))
	return "dryrun-" + hex.EncodeToString(sum[:4])
}

// Slug builds the unique venue slug: slugified name, slugified city,
// and a 6-character random suffix.
func Slug(name, city string) string {
	return Slugify(name) + "-" + Slugify(city) + "-" + randomSuffix()
}

// Slugify lowercases, transliterates common umlauts, and replaces every
// other non-alphanumeric run with a single hyphen.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	replacer := strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")
	s = replacer.Replace(s)

	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && r < 128, unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func randomSuffix() string {
	id := uuid.NewString()
	return strings.ReplaceAll(id, "-", "")[:6]
}
