// Package intent holds the static intent catalog and the resolver that maps
// inbound text to an intent id.
package intent

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"careline-agent/internal/domain"
)

//go:embed intents.yaml
var defaultCatalogYAML []byte

// Catalog is the loaded intent table. Immutable after construction; reloads
// require a redeploy or an explicit rebuild of the catalog.
type Catalog struct {
	defs map[domain.Intent]domain.IntentDefinition
	// normalized trigger index, built once at load
	triggers map[domain.Intent][]string
	// stable scan order for deterministic tie-breaking
	order []domain.Intent
}

type catalogFile struct {
	Intents []domain.IntentDefinition `yaml:"intents"`
}

// DefaultCatalog loads the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads every *.yaml file in dir and merges the entries, later
// files overriding earlier ids.
func LoadCatalog(dir string) (*Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("intent: glob catalog dir: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("intent: no catalog files in %q", dir)
	}

	merged := catalogFile{}
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("intent: read %q: %w", path, err)
		}
		var f catalogFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("intent: parse %q: %w", path, err)
		}
		merged.Intents = append(merged.Intents, f.Intents...)
	}
	return buildCatalog(merged)
}

func parseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("intent: parse catalog: %w", err)
	}
	return buildCatalog(f)
}

func buildCatalog(f catalogFile) (*Catalog, error) {
	if len(f.Intents) == 0 {
		return nil, errors.New("intent: catalog is empty")
	}
	c := &Catalog{
		defs:     make(map[domain.Intent]domain.IntentDefinition, len(f.Intents)),
		triggers: make(map[domain.Intent][]string, len(f.Intents)),
	}
	for _, def := range f.Intents {
		if def.ID == "" {
			return nil, errors.New("intent: catalog entry missing id")
		}
		if _, seen := c.defs[def.ID]; !seen {
			c.order = append(c.order, def.ID)
		}
		c.defs[def.ID] = def
		c.triggers[def.ID] = nil // later files override earlier ids wholesale
		for _, trg := range def.Triggers {
			norm := Normalize(trg)
			if norm == "" {
				continue
			}
			c.triggers[def.ID] = append(c.triggers[def.ID], norm)
		}
	}
	return c, nil
}

// Definition returns the catalog entry for id, if present.
func (c *Catalog) Definition(id domain.Intent) (domain.IntentDefinition, bool) {
	def, ok := c.defs[id]
	return def, ok
}

// Response returns the canned response for id, or empty when absent.
func (c *Catalog) Response(id domain.Intent) string {
	return c.defs[id].Response
}

// BestTrigger returns the intent whose normalized trigger is most similar to
// the normalized text, with the similarity score. Intents are scanned in a
// stable order so exact ties resolve deterministically.
func (c *Catalog) BestTrigger(text string) (domain.Intent, float64) {
	norm := Normalize(text)
	var best domain.Intent
	var bestScore float64
	for _, id := range c.order {
		for _, trg := range c.triggers[id] {
			if s := Ratio(norm, trg); s > bestScore {
				best, bestScore = id, s
			}
		}
	}
	return best, bestScore
}
