package api

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pvpstats/killfeed-ingest/internal/sink"
)

// EventsHandler serves read queries over ingested events.
type EventsHandler struct {
	ch *sink.Client
}

// NewEventsHandler creates an events query handler.
func NewEventsHandler(ch *sink.Client) *EventsHandler {
	return &EventsHandler{ch: ch}
}

// EventsParams filters an event query.
type EventsParams struct {
	ServerID  string
	EventType string // optional: kill, suicide, connection, mission, other
	From      time.Time
	To        time.Time
	Limit     int
}

// EventRecord is one row of the events query result.
type EventRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	EventType  string    `json:"event_type"`
	ActorID    string    `json:"actor_id"`
	ActorName  string    `json:"actor_name"`
	TargetID   string    `json:"target_id"`
	TargetName string    `json:"target_name"`
	Weapon     string    `json:"weapon"`
	Distance   float64   `json:"distance"`
	Platform   string    `json:"platform"`
	Detail     string    `json:"detail"`
}

// GetEvents returns a server's recent events, newest first.
func (h *EventsHandler) GetEvents(ctx context.Context, params EventsParams) ([]EventRecord, error) {
	ctx, span := startSpan(ctx, "api.GetEvents",
		attribute.String("server_id", params.ServerID),
		attribute.String("event_type", params.EventType),
		attribute.Int("limit", params.Limit),
	)

	if err := ValidateServerID(params.ServerID); err != nil {
		endSpanWithError(span, err, "validation failed")
		return nil, err
	}
	if err := ValidateTimeRange(params.From, params.To); err != nil {
		endSpanWithError(span, err, "validation failed")
		return nil, err
	}
	params.Limit = ClampLimit(params.Limit, 100)

	query := `
		SELECT
			timestamp,
			event_type,
			actor_id,
			actor_name,
			target_id,
			target_name,
			weapon,
			distance,
			platform,
			detail
		FROM killfeed.events
		WHERE server_id = ?
	`
	args := []interface{}{params.ServerID}

	if params.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, params.EventType)
	}
	if !params.From.IsZero() {
		query += " AND timestamp BETWEEN ? AND ?"
		args = append(args, params.From, params.To)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, params.Limit)

	_, querySpan := startSpan(ctx, "clickhouse.query",
		attribute.String("db.system", "clickhouse"),
		attribute.String("db.sql.table", "events"),
	)
	rows, err := h.ch.Query(ctx, query, args...)
	if err != nil {
		endSpanWithError(querySpan, err, "query execution failed")
		endSpanWithError(span, err, "query failed")
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var results []EventRecord
	for rows.Next() {
		var r EventRecord
		if err := rows.Scan(
			&r.Timestamp,
			&r.EventType,
			&r.ActorID,
			&r.ActorName,
			&r.TargetID,
			&r.TargetName,
			&r.Weapon,
			&r.Distance,
			&r.Platform,
			&r.Detail,
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
