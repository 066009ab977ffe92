package team

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterFile is the YAML-serializable shape of a set of agent profiles to
// register in bulk, in the teacher's agent.FileConfig style
// (sdk/agent/config.go).
type RosterFile struct {
	Agents []RosterAgent `yaml:"agents"`
}

// RosterAgent is one YAML-serializable agent profile entry.
type RosterAgent struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities,omitempty"`
	Workload     float64  `yaml:"workload,omitempty"`
}

// LoadRosterFile parses path as a YAML roster and registers every listed
// agent on m.
func LoadRosterFile(m *Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var rf RosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, a := range rf.Agents {
		m.RegisterAgent(a.Name, a.Capabilities, a.Workload)
	}
	return nil
}
