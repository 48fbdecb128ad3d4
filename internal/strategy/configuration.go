package strategy

import (
	"fmt"
	"slices"

	"github.com/rafaeljc/grouper/internal/enhancer"
	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
)

// Configuration is a template bound to a concrete enhancement rule set.
// It implements grouping.StrategyConfiguration.
type Configuration struct {
	template     *Template
	enhancements *enhancer.Enhancements
	blob         string
}

var _ grouping.StrategyConfiguration = (*Configuration)(nil)

// DefaultEnhancements compiles the base-only rule set of the template.
func (t *Template) DefaultEnhancements() (*enhancer.Enhancements, error) {
	return enhancer.Parse("", t.bases())
}

func (t *Template) bases() []string {
	if t.EnhancementsBase == "" {
		return nil
	}
	return []string{t.EnhancementsBase}
}

// ParseEnhancements compiles project rules on top of the template's base.
func (t *Template) ParseEnhancements(raw string) (*enhancer.Enhancements, error) {
	return enhancer.Parse(raw, t.bases())
}

// Build binds the template to a serialized enhancement blob. An empty blob selects
// the template's default enhancements.
func (t *Template) Build(blob string) (*Configuration, error) {
	if blob == "" {
		e, err := t.DefaultEnhancements()
		if err != nil {
			return nil, err
		}
		return t.bind(e)
	}

	e, err := enhancer.Loads(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", grouping.ErrMalformedConfig, err)
	}
	return &Configuration{template: t, enhancements: e, blob: blob}, nil
}

func (t *Template) bind(e *enhancer.Enhancements) (*Configuration, error) {
	blob, err := e.Dumps()
	if err != nil {
		return nil, err
	}
	return &Configuration{template: t, enhancements: e, blob: blob}, nil
}

// ID returns the configuration id.
func (c *Configuration) ID() string { return c.template.ID }

// Enhancements returns the serialized enhancement blob persisted with grouped events.
func (c *Configuration) Enhancements() string { return c.blob }

// EnhancementsBase returns the name of the inherited enhancement base.
func (c *Configuration) EnhancementsBase() string { return c.template.EnhancementsBase }

// FingerprintingBases returns the built-in fingerprinting bases of the configuration.
func (c *Configuration) FingerprintingBases() []string {
	return slices.Clone(c.template.FingerprintingBases)
}

// Options returns the version-specific strategy options.
func (c *Configuration) Options() Options { return c.template.Options }

// Evaluate runs every strategy in declaration order.
func (c *Configuration) Evaluate(ev *event.Event) ([]grouping.StrategyOutput, error) {
	ctx := &Context{Enhancements: c.enhancements, Options: c.template.Options}

	outputs := make([]grouping.StrategyOutput, 0, len(c.template.strategies))
	for _, s := range c.template.strategies {
		outputs = append(outputs, grouping.StrategyOutput{
			Strategy: s.Name(),
			Variants: s.Variants(ev, ctx),
		})
	}
	return outputs, nil
}
