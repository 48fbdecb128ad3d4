package strategy

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rafaeljc/grouper/internal/grouping"
)

//go:embed configurations.yaml
var configurationsYAML []byte

// Template is a registered configuration before its enhancements are resolved.
type Template struct {
	ID                  string   `yaml:"id"`
	EnhancementsBase    string   `yaml:"enhancements_base"`
	FingerprintingBases []string `yaml:"fingerprinting_bases"`
	Strategies          []string `yaml:"strategies"`
	Options             Options  `yaml:"options"`

	strategies []Strategy
}

type registryFile struct {
	Default        string     `yaml:"default"`
	Configurations []Template `yaml:"configurations"`
}

type registry struct {
	defaultID string
	byID      map[string]*Template
}

var configurations = mustLoadRegistry(configurationsYAML)

func mustLoadRegistry(data []byte) *registry {
	r, err := loadRegistry(data)
	if err != nil {
		panic(fmt.Sprintf("strategy: invalid configuration registry: %v", err))
	}
	return r
}

func loadRegistry(data []byte) (*registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode registry: %w", err)
	}

	r := &registry{
		defaultID: file.Default,
		byID:      make(map[string]*Template, len(file.Configurations)),
	}
	for i := range file.Configurations {
		t := &file.Configurations[i]
		if t.ID == "" {
			return nil, fmt.Errorf("configuration #%d has no id", i)
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate configuration %q", t.ID)
		}
		for _, id := range t.Strategies {
			s, ok := strategies[id]
			if !ok {
				return nil, fmt.Errorf("configuration %q: unknown strategy %q", t.ID, id)
			}
			t.strategies = append(t.strategies, s)
		}
		r.byID[t.ID] = t
	}
	if _, ok := r.byID[r.defaultID]; !ok {
		return nil, fmt.Errorf("default configuration %q is not registered", r.defaultID)
	}
	return r, nil
}

// Lookup returns the registered template for id.
func Lookup(id string) (*Template, error) {
	t, ok := configurations.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", grouping.ErrConfigurationNotFound, id)
	}
	return t, nil
}

// IsValid reports whether id names a registered configuration.
func IsValid(id string) bool {
	_, ok := configurations.byID[id]
	return ok
}

// DefaultID is the configuration used when a project has none.
func DefaultID() string {
	return configurations.defaultID
}

// IDs lists every registered configuration id.
func IDs() []string {
	ids := make([]string, 0, len(configurations.byID))
	for id := range configurations.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
