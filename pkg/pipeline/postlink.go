package pipeline

import (
	"context"

	"github.com/eventflow/eventflow/internal/model"
	eferrors "github.com/eventflow/eventflow/pkg/errors"
)

// RelinkVenues finds persisted events of the city and dates that carry
// a venue name but no venue id, resolves each venue, and links it.
// Idempotent: already-linked events are never touched, and repeated
// runs converge. Also usable standalone as a repair command.
func (o *Orchestrator) RelinkVenues(ctx context.Context, city string, dates []string) (int, error) {
	var unlinked []model.EventRecord
	err := withRetry(ctx, o.cfg.Retry, func() error {
		var ferr error
		unlinked, ferr = o.events.FindUnlinked(ctx, city, dates)
		return ferr
	})
	if err != nil {
		return 0, eferrors.Wrap(err, eferrors.CodeExternalCall, "unlinked-event lookup failed")
	}

	linked := 0
	for i := range unlinked {
		ev := &unlinked[i]
		if ev.VenueName == "" {
			continue
		}

		if err := o.throttle.Acquire(ctx); err != nil {
			return linked, err
		}
		res, err := o.resolver.Resolve(ctx, ev.VenueName, ev.VenueAddress, ev.City)
		if err != nil {
			o.logger.Warn("relink venue resolution failed", "title", ev.Title, "venue", ev.VenueName, "error", err)
			continue
		}
		if err := o.events.LinkVenue(ctx, ev.ID, res.ID); err != nil {
			o.logger.Warn("relink update failed", "event_id", ev.ID, "error", err)
			continue
		}
		linked++
	}
	return linked, nil
}
