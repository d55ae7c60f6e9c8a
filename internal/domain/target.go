package domain

import "strconv"

// ServerTarget identifies one remote game server for ingestion.
// Targets are supplied by the resolver each tick and are immutable for
// the duration of a run.
type ServerTarget struct {
	// ID is the stable internal identifier (UUID).
	ID string

	// Connection parameters for the SFTP session.
	Host     string
	Port     int
	User     string
	Password string

	// ExplicitPath overrides path discovery entirely when set.
	ExplicitPath string

	// Hostname and NumericID feed the {hostname}_{numericId} directory
	// convention. NumericID is distinct from ID: it is the provider-side
	// number embedded in directory names.
	Hostname  string
	NumericID string

	// GroupID is the owning group (guild) for isolation; informational
	// to the core.
	GroupID string
}

// Addr returns host:port for dialing.
func (t ServerTarget) Addr() string {
	port := t.Port
	if port <= 0 {
		port = 22
	}
	return t.Host + ":" + strconv.Itoa(port)
}
