package targets

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pvpstats/killfeed-ingest/internal/domain"
)

// Resolver supplies the set of servers to ingest from. The orchestrator
// re-resolves on every tick so edits to the servers file take effect
// without a restart.
type Resolver interface {
	Resolve() ([]domain.ServerTarget, error)
}

// serverEntry is one server in servers.yaml.
type serverEntry struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	ExplicitPath string `yaml:"path"`
	Hostname     string `yaml:"hostname"`
	GroupID      string `yaml:"group_id"`
}

// serversFile maps server id to its entry, plus an optional table of
// known numeric ids for servers whose id is not itself numeric.
type serversFile struct {
	Servers  map[string]serverEntry `yaml:"servers"`
	KnownIDs map[string]int         `yaml:"known_ids"`
}

// FileResolver reads targets from a YAML file on every Resolve call.
type FileResolver struct {
	path string
}

// NewFileResolver creates a resolver over the given servers file.
func NewFileResolver(path string) *FileResolver {
	return &FileResolver{path: path}
}

// Resolve loads and validates the servers file.
func (r *FileResolver) Resolve() ([]domain.ServerTarget, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}

	var f serversFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}

	targets := make([]domain.ServerTarget, 0, len(f.Servers))
	for id, entry := range f.Servers {
		if entry.Host == "" {
			return nil, fmt.Errorf("server %s: host is required", id)
		}
		hostname := entry.Hostname
		if hostname == "" {
			hostname = entry.Host
		}
		numericID := ""
		if n := DeriveNumericID(id, hostname, f.KnownIDs); n > 0 {
			numericID = strconv.Itoa(n)
		}
		targets = append(targets, domain.ServerTarget{
			ID:           id,
			Host:         entry.Host,
			Port:         entry.Port,
			User:         entry.User,
			Password:     entry.Password,
			ExplicitPath: entry.ExplicitPath,
			Hostname:     hostname,
			NumericID:    numericID,
			GroupID:      entry.GroupID,
		})
	}

	return targets, nil
}
