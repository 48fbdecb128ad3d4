package grouping

import (
	"sort"
	"strings"
)

// StrategyOutput is what a single strategy produced for an event: an ordered list of
// components keyed by variant kind.
type StrategyOutput struct {
	// Strategy is the strategy name compared for precedence (e.g. "exception").
	Strategy string
	Variants []KindComponent
}

// KindComponent pairs a variant kind with the component a strategy produced for it.
type KindComponent struct {
	Kind      Kind
	Component *Component
}

// precedenceState is the accumulator of the precedence fold.
type precedenceState struct {
	winner  string
	hint    string
	order   []Kind
	perKind map[Kind][]*Component
}

func newPrecedenceState() precedenceState {
	return precedenceState{perKind: make(map[Kind][]*Component, len(Kinds))}
}

// step folds one strategy output into the state. The first strategy with a contributing
// component wins; contributing components of any later strategy are demoted.
func (s precedenceState) step(out StrategyOutput) precedenceState {
	for _, kc := range out.Variants {
		if _, seen := s.perKind[kc.Kind]; !seen {
			s.order = append(s.order, kc.Kind)
		}
		s.perKind[kc.Kind] = append(s.perKind[kc.Kind], kc.Component)

		switch {
		case s.winner == "":
			if kc.Component.Contributes {
				s.winner = out.Strategy
				s.hint = precedenceHint(out, kc.Kind)
			}
		case kc.Component.Contributes && s.winner != out.Strategy:
			kc.Component.Update(false, s.hint)
		}
	}
	return s
}

// finish concatenates the collected components into one composite per kind.
func (s precedenceState) finish() map[Kind]*Component {
	out := make(map[Kind]*Component, len(s.order))
	for _, kind := range s.order {
		composite := NewVariantComponent(kind, s.perKind[kind])
		if !composite.Contributes && s.hint != "" {
			composite.SetHint(s.hint)
		}
		out[kind] = composite
	}
	return out
}

// resolvePrecedence reduces multi-strategy output into one composite component per kind.
func resolvePrecedence(outputs []StrategyOutput) map[Kind]*Component {
	state := newPrecedenceState()
	for _, out := range outputs {
		state = state.step(out)
	}
	return state.finish()
}

func precedenceHint(out StrategyOutput, kind Kind) string {
	subject := out.Strategy
	if kind != KindDefault {
		var names []string
		for _, kc := range out.Variants {
			if kc.Component.Contributes {
				names = append(names, kc.Kind.String())
			}
		}
		sort.Strings(names)
		subject += " of " + strings.Join(names, "/")
	}

	verb := "takes"
	if strings.HasSuffix(out.Strategy, "s") {
		verb = "take"
	}
	return subject + " " + verb + " precedence"
}
