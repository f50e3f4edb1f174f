package backlog

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlItem mirrors Item with yaml tags, for hand-authored backlogs and for
// interop with tools that still emit the prior flat YAML shape.
type yamlItem struct {
	ID           string               `yaml:"id"`
	Level        Level                `yaml:"level"`
	ParentID     string               `yaml:"parentId,omitempty"`
	Title        string               `yaml:"title"`
	Description  string               `yaml:"description"`
	Status       Status               `yaml:"status,omitempty"`
	DependsOn    []string             `yaml:"dependsOn,omitempty"`
	StoryPoints  int                  `yaml:"storyPoints,omitempty"`
	ContextScope *ContractDefinition  `yaml:"contextScope,omitempty"`
	Verify       [][]string           `yaml:"verify,omitempty"`
	Acceptance   []string             `yaml:"acceptance,omitempty"`
	Labels       map[string]string    `yaml:"labels,omitempty"`
}

type yamlFile struct {
	Items []yamlItem `yaml:"items"`
}

// ImportYAML parses a hand-authored backlog document and validates it,
// including dependency and parent existence checks (not cycle detection —
// callers should run internal/graphutil over the result for that).
func ImportYAML(path string) (*Backlog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backlog: reading %s: %w", path, err)
	}
	var doc yamlFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("backlog: parsing %s: %w", path, err)
	}
	b := New()
	now := time.Now()
	for _, yi := range doc.Items {
		status := yi.Status
		if status == "" {
			status = StatusPlanned
		}
		item := &Item{
			ID:           yi.ID,
			Level:        yi.Level,
			ParentID:     yi.ParentID,
			Title:        yi.Title,
			Description:  yi.Description,
			Status:       status,
			DependsOn:    yi.DependsOn,
			StoryPoints:  yi.StoryPoints,
			ContextScope: yi.ContextScope,
			Verify:       yi.Verify,
			Acceptance:   yi.Acceptance,
			Labels:       yi.Labels,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := b.Add(item); err != nil {
			return nil, err
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// ExportYAML writes b out in the hand-authored YAML shape, in each parent's
// recorded child order (DFS pre-order over Roots).
func ExportYAML(b *Backlog, path string) error {
	doc := yamlFile{}
	var walk func(id string)
	walk = func(id string) {
		it := b.Items[id]
		doc.Items = append(doc.Items, yamlItem{
			ID: it.ID, Level: it.Level, ParentID: it.ParentID, Title: it.Title,
			Description: it.Description, Status: it.Status, DependsOn: it.DependsOn,
			StoryPoints: it.StoryPoints, ContextScope: it.ContextScope,
			Verify: it.Verify, Acceptance: it.Acceptance, Labels: it.Labels,
		})
		for _, child := range b.Children[id] {
			walk(child)
		}
	}
	for _, root := range b.Roots() {
		walk(root)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("backlog: marshaling: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("backlog: writing %s: %w", path, err)
	}
	return nil
}
