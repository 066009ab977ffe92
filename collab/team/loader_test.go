package team

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRosterFileRegistersAgents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	content := `
agents:
  - name: a
    capabilities: [go, rust]
    workload: 0.2
  - name: b
    capabilities: [python]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	m := NewManager()
	if err := LoadRosterFile(m, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tm := m.CreateTeam("squad", "obj", []string{"go"}, 5, nil)
	if len(tm.Members) != 1 || tm.Members[0].AgentName != "a" {
		t.Fatalf("expected only agent a matched, got %+v", tm.Members)
	}
}

func TestLoadRosterFileMissingFile(t *testing.T) {
	m := NewManager()
	if err := LoadRosterFile(m, "/nonexistent/roster.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
