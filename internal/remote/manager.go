package remote

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
	"github.com/pvpstats/killfeed-ingest/internal/retry"
)

// Manager hands out one session per server, created lazily and reused
// across ticks.
type Manager struct {
	retryCfg retry.Config

	mu       sync.Mutex
	sessions map[string]*SFTPSession
}

// NewManager creates a session manager.
func NewManager(retryCfg retry.Config) *Manager {
	return &Manager{
		retryCfg: retryCfg,
		sessions: make(map[string]*SFTPSession),
	}
}

// Session returns the session for a target, creating it on first use.
// Connection parameter changes are picked up by Drop followed by Session.
func (m *Manager) Session(target domain.ServerTarget) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[target.ID]; ok {
		return s
	}
	s := NewSFTPSession(target, m.retryCfg)
	m.sessions[target.ID] = s
	return s
}

// Drop closes and forgets the session for a server.
func (m *Manager) Drop(serverID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[serverID]; ok {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("server_id", serverID).Msg("Error closing SFTP session")
		}
		delete(m.sessions, serverID)
	}
}

// CloseAll closes every open session, used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("server_id", id).Msg("Error closing SFTP session")
		}
	}
	m.sessions = make(map[string]*SFTPSession)
}
