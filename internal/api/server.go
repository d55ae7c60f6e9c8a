package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/orchestrator"
	"github.com/pvpstats/killfeed-ingest/internal/sink"
)

// Server exposes the operational HTTP surface: health, tick status,
// event and leaderboard queries, and the manual run triggers.
type Server struct {
	httpServer *http.Server
	events     *EventsHandler
	players    *PlayersHandler
	orch       *orchestrator.Orchestrator
}

// NewServer wires the handlers onto an HTTP server at addr.
func NewServer(addr string, ch *sink.Client, orch *orchestrator.Orchestrator) *Server {
	s := &Server{
		events:  NewEventsHandler(ch),
		players: NewPlayersHandler(ch),
		orch:    orch,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /servers/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /servers/{id}/players", s.handlePlayers)
	mux.HandleFunc("POST /servers/{id}/run", s.handleRun)
	mux.HandleFunc("POST /servers/{id}/rebuild", s.handleRebuild)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status(r.Context()))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	params := EventsParams{
		ServerID:  r.PathValue("id"),
		EventType: r.URL.Query().Get("type"),
		Limit:     queryInt(r, "limit"),
	}
	var err error
	if params.From, params.To, err = queryTimeRange(r); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	results, err := s.events.GetEvents(r.Context(), params)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	results, err := s.players.GetTopPlayers(r.Context(), r.PathValue("id"), queryInt(r, "limit"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("id")
	if err := ValidateServerID(serverID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.orch.TriggerIncremental(r.Context(), serverID, queryInt(r, "lookback_hours"))
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRebuild starts a historical rebuild in the background; rebuild
// durations are unbounded so the request does not wait for completion.
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	serverID := r.PathValue("id")
	if err := ValidateServerID(serverID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	lookbackDays := queryInt(r, "lookback_days")
	go func() {
		if _, err := s.orch.TriggerHistoricalRebuild(context.Background(), serverID, lookbackDays); err != nil {
			log.Error().Err(err).Str("server_id", serverID).Msg("Background rebuild failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"server_id": serverID,
		"status":    "rebuild started",
	})
}

func queryInt(r *http.Request, key string) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func queryTimeRange(r *http.Request) (time.Time, time.Time, error) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, &ValidationError{Field: "from", Message: "must be RFC3339"}
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return from, to, &ValidationError{Field: "to", Message: "must be RFC3339"}
		}
		to = t
	}
	return from, to, nil
}

func writeQueryError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}
