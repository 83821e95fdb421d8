// Package schema provides the column descriptions a run hands to its
// generation, diagnosis and interpretation services.
//
// A description is plain text. It can be read verbatim from a text file or
// rendered from a structured catalog in YAML or JSON:
//
//	tables:
//	  - name: sales
//	    description: One row per order line.
//	    columns:
//	      - name: region
//	        type: TEXT
//	        description: Sales region.
//	        values: [north, south, east]
//
// FileSource re-reads its file on every Load, so edits take effect on the
// next run.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptySchema indicates a source produced no description.
var ErrEmptySchema = errors.New("schema description is empty")

// Catalog describes the tables a query may reference.
type Catalog struct {
	Tables []Table `yaml:"tables" json:"tables"`
}

// Table describes one table.
type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

// Column describes one column. Values lists known categorical values.
type Column struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Values      []string `yaml:"values,omitempty" json:"values,omitempty"`
}

// FromYAML parses a YAML catalog.
func FromYAML(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse yaml: %w", err)
	}
	return c, c.validate()
}

// FromJSON parses a JSON catalog.
func FromJSON(data []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse json: %w", err)
	}
	return c, c.validate()
}

func (c Catalog) validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("catalog: %w", ErrEmptySchema)
	}
	for i, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("catalog: table %d has no name", i)
		}
		for j, col := range t.Columns {
			if col.Name == "" {
				return fmt.Errorf("catalog: table %s column %d has no name", t.Name, j)
			}
		}
	}
	return nil
}

// Render formats the catalog as the text description services receive.
func (c Catalog) Render() string {
	var b strings.Builder
	for i, t := range c.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Table ")
		b.WriteString(t.Name)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
		b.WriteByte('\n')
		for _, col := range t.Columns {
			b.WriteString("  - ")
			b.WriteString(col.Name)
			if col.Type != "" {
				fmt.Fprintf(&b, " (%s)", col.Type)
			}
			if col.Description != "" {
				b.WriteString(": ")
				b.WriteString(col.Description)
			}
			if len(col.Values) > 0 {
				b.WriteString(" Values: ")
				b.WriteString(strings.Join(col.Values, ", "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// FileSource loads a description from a file. Files ending in .yaml, .yml
// or .json are parsed as catalogs; anything else is used verbatim.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and renders the file.
func (s *FileSource) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read schema file: %w", err)
	}

	var text string
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		c, err := FromYAML(data)
		if err != nil {
			return "", fmt.Errorf("schema file %s: %w", s.path, err)
		}
		text = c.Render()
	case ".json":
		c, err := FromJSON(data)
		if err != nil {
			return "", fmt.Errorf("schema file %s: %w", s.path, err)
		}
		text = c.Render()
	default:
		text = string(data)
	}

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("schema file %s: %w", s.path, ErrEmptySchema)
	}
	return text, nil
}

// StaticSource always returns the same description.
type StaticSource string

// Load returns the description.
func (s StaticSource) Load(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrEmptySchema
	}
	return string(s), nil
}
