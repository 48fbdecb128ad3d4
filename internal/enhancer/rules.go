// Package enhancer implements stack-trace enhancement rules: a small line-based DSL
// that changes whether frames count as application code and whether they take part
// in grouping. Compiled rules serialize into an opaque blob that is persisted with
// every grouped event.
package enhancer

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/rafaeljc/grouper/internal/event"
)

// LatestVersion is the rule-format version. It is part of every derived-blob cache key.
const LatestVersion = 2

// Matcher keys understood by the parser.
const (
	MatchFunction = "function"
	MatchModule   = "module"
	MatchPath     = "path"
	MatchPackage  = "package"
	MatchFamily   = "family"
	MatchApp      = "app"
)

// Matcher tests a single frame attribute.
type Matcher struct {
	Key     string
	Pattern string
	Negated bool

	glob     glob.Glob
	families map[string]struct{}
	app      bool
}

func newMatcher(key, pattern string, negated bool) (Matcher, error) {
	m := Matcher{Key: key, Pattern: pattern, Negated: negated}

	var err error
	switch key {
	case MatchFunction, MatchModule:
		m.glob, err = glob.Compile(pattern)
	case MatchPath, MatchPackage:
		m.glob, err = glob.Compile(strings.ToLower(normalizePath(pattern)), '/')
	case MatchFamily:
		m.families = make(map[string]struct{})
		for _, f := range strings.Split(pattern, ",") {
			m.families[strings.TrimSpace(f)] = struct{}{}
		}
	case MatchApp:
		switch strings.ToLower(pattern) {
		case "yes", "true", "1":
			m.app = true
		case "no", "false", "0":
			m.app = false
		default:
			return m, fmt.Errorf("invalid app value %q", pattern)
		}
	default:
		return m, fmt.Errorf("unknown matcher %q", key)
	}
	if err != nil {
		return m, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return m, nil
}

func (m *Matcher) matches(ev *event.Event, f *event.Frame, inApp bool) bool {
	return m.matchesRaw(ev, f, inApp) != m.Negated
}

func (m *Matcher) matchesRaw(ev *event.Event, f *event.Frame, inApp bool) bool {
	switch m.Key {
	case MatchFunction:
		return m.glob.Match(f.Function)
	case MatchModule:
		return m.glob.Match(f.Module)
	case MatchPath:
		for _, p := range []string{f.AbsPath, f.Filename} {
			if p != "" && m.glob.Match(strings.ToLower(normalizePath(p))) {
				return true
			}
		}
		return false
	case MatchPackage:
		return f.Package != "" && m.glob.Match(strings.ToLower(normalizePath(f.Package)))
	case MatchFamily:
		if _, all := m.families["all"]; all {
			return true
		}
		_, ok := m.families[ev.FrameFamily(f)]
		return ok
	case MatchApp:
		return inApp == m.app
	}
	return false
}

func (m *Matcher) String() string {
	prefix := ""
	if m.Negated {
		prefix = "!"
	}
	pattern := m.Pattern
	if strings.ContainsAny(pattern, " \t") {
		pattern = `"` + pattern + `"`
	}
	return prefix + m.Key + ":" + pattern
}

// Action is a `+flag` / `-flag` modification applied to matching frames.
type Action struct {
	Flag  string // "app" or "group"
	Value bool
}

func parseAction(token string) (Action, error) {
	if len(token) < 2 || (token[0] != '+' && token[0] != '-') {
		return Action{}, fmt.Errorf("invalid action %q", token)
	}
	flag := token[1:]
	if flag != "app" && flag != "group" {
		return Action{}, fmt.Errorf("unknown action flag %q", flag)
	}
	return Action{Flag: flag, Value: token[0] == '+'}, nil
}

func (a Action) String() string {
	if a.Value {
		return "+" + a.Flag
	}
	return "-" + a.Flag
}

// Rule is a list of matchers (all must match) and the actions applied on match.
type Rule struct {
	Matchers []Matcher
	Actions  []Action
}

// Text renders the rule in canonical DSL form.
func (r *Rule) Text() string {
	parts := make([]string, 0, len(r.Matchers)+len(r.Actions))
	for i := range r.Matchers {
		parts = append(parts, r.Matchers[i].String())
	}
	for _, a := range r.Actions {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, " ")
}

func (r *Rule) matches(ev *event.Event, f *event.Frame, inApp bool) bool {
	for i := range r.Matchers {
		if !r.Matchers[i].matches(ev, f, inApp) {
			return false
		}
	}
	return true
}

// FrameState is the outcome of applying enhancements to a single frame.
type FrameState struct {
	InApp       bool
	Contributes bool
	Hint        string
}

// ApplyToFrames evaluates every rule against every frame. Base rules run first so
// project rules can override them.
func (e *Enhancements) ApplyToFrames(ev *event.Event, frames []event.Frame) []FrameState {
	states := make([]FrameState, len(frames))
	rules := e.effectiveRules()

	for i := range frames {
		f := &frames[i]
		st := FrameState{InApp: f.IsInApp(), Contributes: true}

		for j := range rules {
			rule := &rules[j]
			if !rule.matches(ev, f, st.InApp) {
				continue
			}
			for _, a := range rule.Actions {
				switch a.Flag {
				case "app":
					st.InApp = a.Value
				case "group":
					st.Contributes = a.Value
					if a.Value {
						st.Hint = fmt.Sprintf("un-ignored by stack trace rule (%s)", rule.Text())
					} else {
						st.Hint = fmt.Sprintf("marked out of grouping by stack trace rule (%s)", rule.Text())
					}
				}
			}
		}
		states[i] = st
	}
	return states
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
