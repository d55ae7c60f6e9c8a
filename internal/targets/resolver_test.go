package targets

import (
	"os"
	"path/filepath"
	"testing"
)

const serversYAML = `
servers:
  "7020":
    host: 198.51.100.7
    port: 2022
    user: steam
    password: secret
    hostname: host7
  "af4fcd7c-0a86-11e7-8e5a-00155d000b0b":
    host: 203.0.113.9
    group_id: guild-1
    path: /custom/deathlogs
known_ids:
  named: 4242
`

func writeServersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileResolver(t *testing.T) {
	r := NewFileResolver(writeServersFile(t, serversYAML))

	got, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(got))
	}

	byID := make(map[string]int)
	for i, tgt := range got {
		byID[tgt.ID] = i
	}

	srv := got[byID["7020"]]
	if srv.Host != "198.51.100.7" || srv.Port != 2022 || srv.User != "steam" {
		t.Errorf("unexpected connection params: %+v", srv)
	}
	if srv.Addr() != "198.51.100.7:2022" {
		t.Errorf("unexpected addr %s", srv.Addr())
	}
	if srv.NumericID != "7020" {
		t.Errorf("numeric id must come from the numeric server id, got %q", srv.NumericID)
	}
	if srv.Hostname != "host7" {
		t.Errorf("unexpected hostname %q", srv.Hostname)
	}

	uuidSrv := got[byID["af4fcd7c-0a86-11e7-8e5a-00155d000b0b"]]
	if uuidSrv.ExplicitPath != "/custom/deathlogs" {
		t.Errorf("unexpected explicit path %q", uuidSrv.ExplicitPath)
	}
	if uuidSrv.Hostname != "203.0.113.9" {
		t.Errorf("hostname must default to host, got %q", uuidSrv.Hostname)
	}
	if uuidSrv.NumericID != "2748" {
		t.Errorf("expected uuid-derived numeric id 2748, got %q", uuidSrv.NumericID)
	}
	if uuidSrv.Addr() != "203.0.113.9:22" {
		t.Errorf("port must default to 22, got %s", uuidSrv.Addr())
	}
}

func TestFileResolver_MissingHost(t *testing.T) {
	r := NewFileResolver(writeServersFile(t, "servers:\n  bad:\n    port: 22\n"))
	if _, err := r.Resolve(); err == nil {
		t.Fatal("expected error for server without host")
	}
}

func TestFileResolver_MissingFile(t *testing.T) {
	r := NewFileResolver("/nonexistent/servers.yaml")
	if _, err := r.Resolve(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
