package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileDefinition is the YAML-serializable shape of a workflow, in the
// teacher's agent.FileConfig style (sdk/agent/config.go).
type FileDefinition struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
	Nodes       []FileNode     `yaml:"nodes"`
}

// FileNode is one YAML-serializable workflow node. Children are referenced
// by name and resolved against other entries in the same file.
type FileNode struct {
	Name       string         `yaml:"name"`
	Type       NodeKind       `yaml:"type"`
	AgentName  string         `yaml:"agent_name,omitempty"`
	TaskParams map[string]any `yaml:"task_params,omitempty"`
	Condition  string         `yaml:"condition,omitempty"`
	Children   []string       `yaml:"children,omitempty"`
}

// LoadDefinitionFile parses path as a YAML workflow definition and builds a
// Definition on engine, wiring node children by the declared name references.
// The first node listed becomes the root, as AddNode would do for manually
// constructed workflows.
func LoadDefinitionFile(engine *Engine, path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var fd FileDefinition
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	wf := engine.CreateWorkflow(fd.Name, fd.Description, fd.Metadata)

	byName := make(map[string]*Node, len(fd.Nodes))
	for _, fn := range fd.Nodes {
		node := engine.AddNode(wf, fn.Name, fn.Type, fn.AgentName, fn.TaskParams, fn.Condition)
		byName[fn.Name] = node
	}

	for _, fn := range fd.Nodes {
		parent := byName[fn.Name]
		for _, childName := range fn.Children {
			child, ok := byName[childName]
			if !ok {
				return nil, fmt.Errorf("%s: node %q references unknown child %q", path, fn.Name, childName)
			}
			engine.ConnectNodes(wf, parent.ID, child.ID)
		}
	}

	return wf, nil
}
