// Package strategy holds the grouping strategies and the registry of versioned grouping
// configurations that combine them.
package strategy

import (
	"github.com/rafaeljc/grouper/internal/enhancer"
	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
)

// Options toggle behavior differences between configuration versions.
type Options struct {
	ContextLineFallback  bool `yaml:"context_line_fallback"`
	ParameterizeMessages bool `yaml:"parameterize_messages"`
}

// Context is the per-evaluation input shared by all strategies of a configuration.
type Context struct {
	Enhancements *enhancer.Enhancements
	Options      Options
}

// Strategy inspects an event and yields components for the variant kinds it knows.
// An empty result means the strategy does not apply to the event.
type Strategy interface {
	// ID is the registry id used in configuration declarations.
	ID() string
	// Name is the name compared for precedence and shown in hints.
	Name() string
	Variants(ev *event.Event, ctx *Context) []grouping.KindComponent
}

var strategies = byID(
	chainedExceptionStrategy{},
	threadsStrategy{},
	stacktraceStrategy{},
	messageStrategy{},
)

func byID(list ...Strategy) map[string]Strategy {
	out := make(map[string]Strategy, len(list))
	for _, s := range list {
		out[s.ID()] = s
	}
	return out
}
