// Package devseed loads seed files used to pre-populate the in-memory
// UploadThing backend in mock mode and in the sandbox.
package devseed

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileSeedEntry describes one stored file. Content holds plain text; Base64
// holds binary payloads. At most one of them may be set.
type FileSeedEntry struct {
	Name       string `yaml:"name" json:"name"`
	Key        string `yaml:"key,omitempty" json:"key,omitempty"`
	CustomID   string `yaml:"customId,omitempty" json:"customId,omitempty"`
	Type       string `yaml:"type,omitempty" json:"type,omitempty"`
	Content    string `yaml:"content,omitempty" json:"content,omitempty"`
	Base64     string `yaml:"base64,omitempty" json:"base64,omitempty"`
	ACL        string `yaml:"acl,omitempty" json:"acl,omitempty"`
	UploadedAt int64  `yaml:"uploadedAt,omitempty" json:"uploadedAt,omitempty"`
}

// Data returns the decoded payload of the entry.
func (e FileSeedEntry) Data() ([]byte, error) {
	if e.Content != "" && e.Base64 != "" {
		return nil, fmt.Errorf("devseed: entry %q sets both content and base64", e.Name)
	}
	if e.Base64 == "" {
		return []byte(e.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(e.Base64))
	if err != nil {
		return nil, fmt.Errorf("devseed: entry %q: decode base64: %w", e.Name, err)
	}
	return data, nil
}

// Seed is the content of a seed file.
type Seed struct {
	// LimitBytes overrides the storage quota reported by the mock.
	LimitBytes int64           `yaml:"limitBytes,omitempty" json:"limitBytes,omitempty"`
	Files      []FileSeedEntry `yaml:"files" json:"files"`
}

// Load reads a seed file. Files ending in .json are parsed as JSON, anything
// else as YAML. The document is either a Seed object or a bare list of
// file entries.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseJSON(data)
	}
	return parseYAML(data)
}

func parseJSON(data []byte) (*Seed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var files []FileSeedEntry
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return nil, fmt.Errorf("devseed: decode json: %w", err)
		}
		return validate(&Seed{Files: files})
	}
	var seed Seed
	if err := json.Unmarshal(trimmed, &seed); err != nil {
		return nil, fmt.Errorf("devseed: decode json: %w", err)
	}
	return validate(&seed)
}

func parseYAML(data []byte) (*Seed, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("devseed: decode yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return &Seed{}, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var files []FileSeedEntry
		if err := root.Decode(&files); err != nil {
			return nil, fmt.Errorf("devseed: decode yaml: %w", err)
		}
		return validate(&Seed{Files: files})
	}
	var seed Seed
	if err := root.Decode(&seed); err != nil {
		return nil, fmt.Errorf("devseed: decode yaml: %w", err)
	}
	return validate(&seed)
}

func validate(seed *Seed) (*Seed, error) {
	if seed.LimitBytes < 0 {
		return nil, fmt.Errorf("devseed: limitBytes must not be negative")
	}
	for i, e := range seed.Files {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("devseed: file %d: name is required", i)
		}
		if _, err := e.Data(); err != nil {
			return nil, err
		}
	}
	return seed, nil
}
