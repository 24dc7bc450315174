package flows

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownFlow is returned when a flow id is not part of the catalog.
var ErrUnknownFlow = errors.New("flows: unknown flow")

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the immutable set of flows known to the bot.
type Catalog struct {
	byID  map[string]*Flow
	order []string
}

// NewCatalog validates the flows and indexes them by id.
func NewCatalog(list ...Flow) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Flow, len(list))}
	for i := range list {
		f := list[i]
		if err := validate(&f); err != nil {
			return nil, err
		}
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("flows: duplicate flow id %q", f.ID)
		}
		c.byID[f.ID] = &f
		c.order = append(c.order, f.ID)
	}
	return c, nil
}

func validate(f *Flow) error {
	f.ID = strings.TrimSpace(f.ID)
	if f.ID == "" {
		return errors.New("flows: flow id is required")
	}
	if strings.TrimSpace(f.Script) == "" {
		return fmt.Errorf("flows: %s: script is required", f.ID)
	}
	if !filepath.IsLocal(f.Script) {
		return fmt.Errorf("flows: %s: script %q must be relative to the scripts directory", f.ID, f.Script)
	}
	if len(f.Prompts) == 0 {
		return fmt.Errorf("flows: %s: at least one prompt is required", f.ID)
	}
	seen := make(map[string]struct{}, len(f.Prompts))
	for i, p := range f.Prompts {
		if strings.TrimSpace(p.Field) == "" {
			return fmt.Errorf("flows: %s: prompt %d has no field", f.ID, i)
		}
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("flows: %s: prompt %q has no text", f.ID, p.Field)
		}
		if _, dup := seen[p.Field]; dup {
			return fmt.Errorf("flows: %s: duplicate field %q", f.ID, p.Field)
		}
		seen[p.Field] = struct{}{}
	}
	if len(f.Artifacts) == 0 {
		return fmt.Errorf("flows: %s: at least one artifact is required", f.ID)
	}
	names := make(map[string]struct{}, len(f.Artifacts))
	for _, a := range f.Artifacts {
		if !filepath.IsLocal(a) {
			return fmt.Errorf("flows: %s: artifact %q must be a local relative path", f.ID, a)
		}
		if _, dup := names[a]; dup {
			return fmt.Errorf("flows: %s: duplicate artifact %q", f.ID, a)
		}
		names[a] = struct{}{}
	}
	return nil
}

// Lookup returns the flow registered under id.
func (c *Catalog) Lookup(id string) (*Flow, error) {
	if f, ok := c.byID[id]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFlow, id)
}

// IDs returns flow ids in declaration order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len reports the number of flows.
func (c *Catalog) Len() int {
	return len(c.order)
}

type catalogFile struct {
	Flows []Flow `yaml:"flows"`
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("flows: failed to parse catalog: %w", err)
	}
	if len(doc.Flows) == 0 {
		return nil, errors.New("flows: catalog declares no flows")
	}
	return NewCatalog(doc.Flows...)
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flows: failed to read catalog: %w", err)
	}
	return Parse(data)
}
