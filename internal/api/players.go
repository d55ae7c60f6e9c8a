package api

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pvpstats/killfeed-ingest/internal/sink"
)

// PlayersHandler serves the per-server player leaderboard.
type PlayersHandler struct {
	ch *sink.Client
}

// NewPlayersHandler creates a player stats handler.
func NewPlayersHandler(ch *sink.Client) *PlayersHandler {
	return &PlayersHandler{ch: ch}
}

// PlayerRecord is one row of the leaderboard.
type PlayerRecord struct {
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Kills      int64     `json:"kills"`
	Deaths     int64     `json:"deaths"`
	Suicides   int64     `json:"suicides"`
	LastSeen   time.Time `json:"last_seen"`
}

// GetTopPlayers returns a server's players ordered by kills. Aggregate
// rows are summed at read time; the table merges them lazily.
func (h *PlayersHandler) GetTopPlayers(ctx context.Context, serverID string, limit int) ([]PlayerRecord, error) {
	ctx, span := startSpan(ctx, "api.GetTopPlayers",
		attribute.String("server_id", serverID),
		attribute.Int("limit", limit),
	)

	if err := ValidateServerID(serverID); err != nil {
		endSpanWithError(span, err, "validation failed")
		return nil, err
	}
	limit = ClampLimit(limit, 25)

	query := `
		SELECT
			player_id,
			any(player_name) AS player_name,
			sum(kills) AS kills,
			sum(deaths) AS deaths,
			sum(suicides) AS suicides,
			max(last_seen) AS last_seen
		FROM killfeed.player_stats
		WHERE server_id = ?
		GROUP BY player_id
		ORDER BY kills DESC
		LIMIT ?
	`

	_, querySpan := startSpan(ctx, "clickhouse.query",
		attribute.String("db.system", "clickhouse"),
		attribute.String("db.sql.table", "player_stats"),
	)
	rows, err := h.ch.Query(ctx, query, serverID, limit)
	if err != nil {
		endSpanWithError(querySpan, err, "query execution failed")
		endSpanWithError(span, err, "query failed")
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []PlayerRecord
	for rows.Next() {
		var r PlayerRecord
		if err := rows.Scan(
			&r.PlayerID,
			&r.PlayerName,
			&r.Kills,
			&r.Deaths,
			&r.Suicides,
			&r.LastSeen,
		); err != nil {
			endSpanWithError(querySpan, err, "scan failed")
			endSpanWithError(span, err, "scan failed")
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		endSpanWithError(querySpan, err, "rows error")
		endSpanWithError(span, err, "rows error")
		return nil, fmt.Errorf("rows error: %w", err)
	}

	querySpan.SetAttributes(attribute.Int("db.rows.count", len(results)))
	endSpanSuccess(querySpan)
	endSpanSuccess(span)
	return results, nil
}
