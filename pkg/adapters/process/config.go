package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tool is one allow-listed external command.
type Tool struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of tools.yaml.
type ConfigFile struct {
	Tools []Tool `yaml:"tools" json:"tools"`
}

// LoadTools reads a tools file (YAML, or JSON by extension) and returns the
// tools by name. Entries without a name or command are rejected.
func LoadTools(path string) (map[string]Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	tools := make(map[string]Tool, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		if tool.Name == "" || tool.Command == "" {
			return nil, fmt.Errorf("%s: tool %d needs a name and a command", path, i)
		}
		tools[strings.ToLower(tool.Name)] = tool
	}
	return tools, nil
}
