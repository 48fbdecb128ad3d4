// Package fingerprinting implements server-side fingerprinting rules. A rule matches
// event attributes and replaces the event's fingerprint (and optionally its title)
// before grouping runs.
package fingerprinting

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rafaeljc/grouper/internal/event"
)

// rulesFormatVersion versions the cached JSON representation of Rules.
const rulesFormatVersion = 1

// Rule is a list of matchers and the fingerprint assigned when all of them match.
type Rule struct {
	Matchers    []Matcher
	Fingerprint []string
	Attributes  map[string]string
	IsBuiltin   bool
}

// Text renders the rule in canonical DSL form.
func (r *Rule) Text() string {
	var b strings.Builder
	for i := range r.Matchers {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.Matchers[i].String())
	}

	b.WriteString(" -> ")
	for i, tok := range r.Fingerprint {
		if i > 0 {
			b.WriteString(", ")
		}
		if strings.HasPrefix(tok, "{{") {
			b.WriteString(tok)
			continue
		}
		b.WriteString(quoteIfNeeded(tok))
	}

	for _, name := range slices.Sorted(maps.Keys(r.Attributes)) {
		fmt.Fprintf(&b, " %s=%q", name, r.Attributes[name])
	}
	return b.String()
}

// ToJSON renders the rule as recorded in an event's fingerprint info.
func (r *Rule) ToJSON() map[string]any {
	matchers := make([]any, 0, len(r.Matchers))
	for i := range r.Matchers {
		matchers = append(matchers, r.Matchers[i].toJSON())
	}
	fingerprint := make([]any, 0, len(r.Fingerprint))
	for _, tok := range r.Fingerprint {
		fingerprint = append(fingerprint, tok)
	}
	attributes := make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		attributes[k] = v
	}

	out := map[string]any{
		"text":        r.Text(),
		"matchers":    matchers,
		"fingerprint": fingerprint,
		"attributes":  attributes,
	}
	if r.IsBuiltin {
		out["is_builtin"] = true
	}
	return out
}

func (r *Rule) matches(ev *event.Event) bool {
	var exceptionMatchers, frameMatchers []*Matcher
	for i := range r.Matchers {
		m := &r.Matchers[i]
		switch m.category() {
		case categoryException:
			exceptionMatchers = append(exceptionMatchers, m)
		case categoryFrame:
			frameMatchers = append(frameMatchers, m)
		default:
			if !m.matchesEvent(ev) {
				return false
			}
		}
	}

	if len(exceptionMatchers) > 0 && !anyException(ev, exceptionMatchers) {
		return false
	}
	if len(frameMatchers) > 0 && !anyFrame(ev, frameMatchers) {
		return false
	}
	return true
}

// anyException reports whether a single exception satisfies every matcher.
func anyException(ev *event.Event, matchers []*Matcher) bool {
	values := ev.ExceptionValues()
	for i := range values {
		if allMatch(matchers, func(m *Matcher) bool { return m.matchesException(&values[i]) }) {
			return true
		}
	}
	return false
}

// anyFrame reports whether a single frame satisfies every matcher.
func anyFrame(ev *event.Event, matchers []*Matcher) bool {
	for _, st := range ev.Stacktraces() {
		for i := range st.Frames {
			if allMatch(matchers, func(m *Matcher) bool { return m.matchesFrame(&st.Frames[i]) }) {
				return true
			}
		}
	}
	return false
}

func allMatch(matchers []*Matcher, fn func(*Matcher) bool) bool {
	for _, m := range matchers {
		if !fn(m) {
			return false
		}
	}
	return true
}

// Match is the outcome of a successful rule lookup.
type Match struct {
	Rule        *Rule
	Fingerprint []string
	Attributes  map[string]string
}

// Rules is a compiled set of project rules plus the built-in bases they inherit.
type Rules struct {
	Rules []Rule
	Bases []string

	baseRules []Rule
}

// Parse compiles raw rule text on top of the given bases.
// Syntax errors are reported as *InvalidFingerprintingError.
func Parse(raw string, bases []string) (*Rules, error) {
	rules, err := parseRules(raw)
	if err != nil {
		return nil, err
	}
	return newRules(rules, bases)
}

// Empty returns a rule set without project rules.
func Empty(bases []string) (*Rules, error) {
	return newRules(nil, bases)
}

func newRules(rules []Rule, bases []string) (*Rules, error) {
	rs := &Rules{Rules: rules, Bases: make([]string, 0, len(bases))}
	for _, name := range bases {
		base, ok := lookupBase(name)
		if !ok {
			return nil, fmt.Errorf("unknown fingerprinting base %q", name)
		}
		rs.Bases = append(rs.Bases, name)
		rs.baseRules = append(rs.baseRules, base...)
	}
	return rs, nil
}

// Match returns the first rule that matches ev. Project rules are tried before
// base rules. It returns nil when nothing matches.
func (rs *Rules) Match(ev *event.Event) *Match {
	for _, set := range [][]Rule{rs.Rules, rs.baseRules} {
		for i := range set {
			rule := &set[i]
			if rule.matches(ev) {
				return &Match{
					Rule:        rule,
					Fingerprint: slices.Clone(rule.Fingerprint),
					Attributes:  maps.Clone(rule.Attributes),
				}
			}
		}
	}
	return nil
}

type rulesJSON struct {
	Version int        `json:"version"`
	Rules   []ruleJSON `json:"rules"`
}

type ruleJSON struct {
	Matchers    [][2]string       `json:"matchers"`
	Fingerprint []string          `json:"fingerprint"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ToJSON serializes the project rules for cache storage. Bases are not
// included; they are supplied again by FromJSON.
func (rs *Rules) ToJSON() ([]byte, error) {
	out := rulesJSON{
		Version: rulesFormatVersion,
		Rules:   make([]ruleJSON, 0, len(rs.Rules)),
	}
	for i := range rs.Rules {
		rule := &rs.Rules[i]
		rj := ruleJSON{Fingerprint: rule.Fingerprint, Attributes: rule.Attributes}
		for j := range rule.Matchers {
			m := &rule.Matchers[j]
			key := m.Key
			if m.Negated {
				key = "!" + key
			}
			rj.Matchers = append(rj.Matchers, [2]string{key, m.Pattern})
		}
		out.Rules = append(out.Rules, rj)
	}
	return json.Marshal(out)
}

// FromJSON restores a rule set produced by ToJSON on top of the given bases.
func FromJSON(data []byte, bases []string) (*Rules, error) {
	var in rulesJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprinting rules: %w", err)
	}
	if in.Version != rulesFormatVersion {
		return nil, fmt.Errorf("unsupported fingerprinting rules version %d", in.Version)
	}

	rules := make([]Rule, 0, len(in.Rules))
	for _, rj := range in.Rules {
		rule := Rule{Fingerprint: rj.Fingerprint, Attributes: rj.Attributes}
		for _, pair := range rj.Matchers {
			key, negated := strings.CutPrefix(pair[0], "!")
			m, err := newMatcher(key, pair[1], negated)
			if err != nil {
				return nil, fmt.Errorf("failed to restore fingerprinting rule: %w", err)
			}
			rule.Matchers = append(rule.Matchers, m)
		}
		rules = append(rules, rule)
	}
	return newRules(rules, bases)
}
