package pipeline

import (
	"context"

	"github.com/eventflow/eventflow/internal/model"
)

// EventRepository is the persistence layer the pipeline writes to. The
// pipeline owns no storage itself; any backend that can upsert on the
// (title, start date, city) identity can sit behind this interface.
type EventRepository interface {
	// Ping verifies the backend is reachable. The pipeline calls it
	// once before writing anything; a failure aborts the whole run.
	Ping(ctx context.Context) error

	// UpsertEvent inserts ev or merges it into the existing record
	// with the same stable id. created reports whether a new row was
	// written. Backends that surface unique-constraint violations
	// instead of merging may return a CodeDuplicateKey error; the
	// pipeline counts that as an update.
	UpsertEvent(ctx context.Context, ev *model.EventRecord) (created bool, err error)

	// FindByCityDates returns the persisted events of a city on the
	// given dates (formatted 2006-01-02). Used to scope duplicate
	// detection to the batch's own dates.
	FindByCityDates(ctx context.Context, city string, dates []string) ([]model.EventRecord, error)

	// FindUnlinked returns persisted events of the city and dates that
	// carry a venue name but no venue id.
	FindUnlinked(ctx context.Context, city string, dates []string) ([]model.EventRecord, error)

	// LinkVenue sets the venue id on one event.
	LinkVenue(ctx context.Context, eventID, venueID string) error
}
