package state

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

const (
	bucketName = "ingestion_state"
)

// BoltDBStore implements Store using BoltDB. One JSON document per server.
type BoltDBStore struct {
	db *bbolt.DB
}

// NewBoltDBStore creates a new BoltDB state store
func NewBoltDBStore(dbPath string) (*BoltDBStore, error) {
	// Try to open with short timeout
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		// If file is locked, another process is holding it; a previous
		// run was probably killed without graceful shutdown
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	// Create bucket if not exists
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB state store initialized")

	return &BoltDBStore{db: db}, nil
}

// Load retrieves the state for a server
func (s *BoltDBStore) Load(ctx context.Context, serverID string) (*domain.IngestionState, error) {
	var state *domain.IngestionState

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		val := b.Get([]byte(serverID))
		if val == nil {
			return ErrNotFound
		}

		var st domain.IngestionState
		if err := json.Unmarshal(val, &st); err != nil {
			return fmt.Errorf("invalid state document: %w", err)
		}
		state = &st
		return nil
	})

	if err != nil {
		if err == ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load state for %s: %w", serverID, err)
	}

	if state.LinePositions == nil {
		state.LinePositions = make(map[string]int)
	}
	if state.SeenFiles == nil {
		state.SeenFiles = make(map[string]bool)
	}

	return state, nil
}

// Save persists the state for a server
func (s *BoltDBStore) Save(ctx context.Context, state *domain.IngestionState) error {
	state.UpdatedAt = time.Now().UTC()

	val, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(state.ServerID), val)
	})

	if err != nil {
		return fmt.Errorf("failed to save state for %s: %w", state.ServerID, err)
	}

	log.Debug().
		Str("server_id", state.ServerID).
		Time("last_killfeed_at", state.LastKillfeedAt).
		Time("last_gamelog_at", state.LastGameLogAt).
		Int("tracked_files", len(state.LinePositions)).
		Msg("Ingestion state saved")

	return nil
}

// Delete removes the state for a server
func (s *BoltDBStore) Delete(ctx context.Context, serverID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(serverID))
	})

	if err != nil {
		return fmt.Errorf("failed to delete state for %s: %w", serverID, err)
	}

	return nil
}

// List returns all persisted states
func (s *BoltDBStore) List(ctx context.Context) (map[string]*domain.IngestionState, error) {
	result := make(map[string]*domain.IngestionState)

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}

		return b.ForEach(func(k, v []byte) error {
			var st domain.IngestionState
			if err := json.Unmarshal(v, &st); err != nil {
				// A corrupt document is skipped, not fatal; the affected
				// server re-enters as first contact
				log.Warn().Str("server_id", string(k)).Msg("Skipping corrupt state document")
				return nil
			}
			result[string(k)] = &st
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}

	return result, nil
}

// Close closes the BoltDB database
func (s *BoltDBStore) Close() error {
	log.Info().Msg("Closing BoltDB state store")
	return s.db.Close()
}
