package state

import (
	"context"
	"errors"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// ErrNotFound is returned by Load when a server has no persisted state.
// Callers treat it as first contact, never as a failure.
var ErrNotFound = errors.New("ingestion state not found")

// Store persists per-server ingestion resume state.
// Implementations: BoltDB (primary).
type Store interface {
	// Load retrieves the state for a server.
	// Returns ErrNotFound when no state was ever saved.
	Load(ctx context.Context, serverID string) (*domain.IngestionState, error)

	// Save persists the state, write-through.
	Save(ctx context.Context, state *domain.IngestionState) error

	// Delete removes the state, used on decommission and historical reset.
	Delete(ctx context.Context, serverID string) error

	// List returns all persisted states keyed by server id.
	List(ctx context.Context) (map[string]*domain.IngestionState, error)

	// Close closes the store.
	Close() error
}
