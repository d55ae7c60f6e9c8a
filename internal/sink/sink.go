package sink

import (
	"context"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// Sink receives normalized events and derived aggregates.
//
// InsertBatch has partial-success semantics: an error on one item must
// not abort the rest. The returned count is the number of events that
// made it to storage; per-item errors are returned alongside it. The
// caller treats inserted < len(events) as a warning, not a failure.
type Sink interface {
	InsertBatch(ctx context.Context, events []domain.NormalizedEvent) (int, []error)
	ClearServerData(ctx context.Context, serverID string) error
	UpsertPlayerAggregate(ctx context.Context, serverID string, delta domain.PlayerAggregateDelta) error
	Close() error
}
