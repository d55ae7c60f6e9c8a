package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// ClickHouse DateTime valid range: 1925-01-01 to 2283-11-11
var (
	minClickHouseDateTime = time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)
	maxClickHouseDateTime = time.Date(2283, 11, 11, 23, 59, 59, 999999999, time.UTC)
)

// ensureValidDateTime clamps a time value into the ClickHouse DateTime
// range. Zero or out-of-range values collapse to the range minimum.
func ensureValidDateTime(t time.Time) time.Time {
	if t.IsZero() || t.Before(minClickHouseDateTime) || t.After(maxClickHouseDateTime) {
		return minClickHouseDateTime
	}
	return t
}

// ClickHouseSink writes normalized events and player aggregates to
// ClickHouse tables.
type ClickHouseSink struct {
	client *Client
}

// NewClickHouseSink wraps a connected client.
func NewClickHouseSink(client *Client) *ClickHouseSink {
	return &ClickHouseSink{client: client}
}

// InsertBatch appends events to killfeed.events. A failed append skips
// that event and is reported in the per-item error list; the remaining
// events still go out. A failed send loses the whole prepared batch and
// is reported as one error per undelivered event.
func (s *ClickHouseSink) InsertBatch(ctx context.Context, events []domain.NormalizedEvent) (int, []error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := s.client.Conn().PrepareBatch(ctx, "INSERT INTO killfeed.events")
	if err != nil {
		errs := make([]error, len(events))
		for i := range errs {
			errs[i] = fmt.Errorf("failed to prepare batch: %w", err)
		}
		return 0, errs
	}

	var (
		itemErrs []error
		appended int
	)
	for i, ev := range events {
		err := batch.Append(
			ensureValidDateTime(ev.Timestamp),
			ev.ServerID,
			string(ev.Type),
			ev.ActorID,
			ev.ActorName,
			ev.TargetID,
			ev.TargetName,
			ev.Weapon,
			ev.Distance,
			ev.Platform,
			ev.Detail,
			ev.SourceFile,
			uint32(ev.SourceLine),
		)
		if err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("event %d (%s): %w", i, ev.DedupKey(), err))
			log.Error().
				Err(err).
				Str("server_id", ev.ServerID).
				Str("event_type", string(ev.Type)).
				Str("file", ev.SourceFile).
				Int("line", ev.SourceLine).
				Msg("Failed to append event to batch, skipping")
			continue
		}
		appended++
	}

	if appended == 0 {
		return 0, itemErrs
	}

	if err := batch.Send(); err != nil {
		log.Error().
			Err(err).
			Int("appended", appended).
			Msg("Failed to send event batch")
		for i := 0; i < appended; i++ {
			itemErrs = append(itemErrs, fmt.Errorf("batch send: %w", err))
		}
		return 0, itemErrs
	}

	log.Debug().
		Int("total", len(events)).
		Int("written", appended).
		Msg("Flushed event batch to ClickHouse")

	return appended, itemErrs
}

// ClearServerData removes all events and player aggregates for one
// server. Used by the historical rebuild before a full re-ingest.
func (s *ClickHouseSink) ClearServerData(ctx context.Context, serverID string) error {
	for _, table := range []string{"killfeed.events", "killfeed.player_stats"} {
		query := fmt.Sprintf("ALTER TABLE %s DELETE WHERE server_id = ?", table)
		if err := s.client.Exec(ctx, query, serverID); err != nil {
			return fmt.Errorf("failed to clear %s for server %s: %w", table, serverID, err)
		}
	}
	log.Info().Str("server_id", serverID).Msg("Cleared server data before rebuild")
	return nil
}

// UpsertPlayerAggregate records a per-player stat delta. The table is a
// SummingMergeTree keyed on (server_id, player_id) so inserts are the
// upsert.
func (s *ClickHouseSink) UpsertPlayerAggregate(ctx context.Context, serverID string, delta domain.PlayerAggregateDelta) error {
	err := s.client.Exec(ctx,
		"INSERT INTO killfeed.player_stats (server_id, player_id, player_name, kills, deaths, suicides, last_seen) VALUES (?, ?, ?, ?, ?, ?, ?)",
		serverID,
		delta.PlayerID,
		delta.PlayerName,
		delta.Kills,
		delta.Deaths,
		delta.Suicides,
		ensureValidDateTime(delta.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert player aggregate for %s: %w", delta.PlayerID, err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *ClickHouseSink) Close() error {
	return s.client.Close()
}
