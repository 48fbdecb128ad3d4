package enhancer

import (
	"fmt"
	"strings"
)

// InvalidEnhancementsError reports a syntax error in user-supplied enhancement rules.
type InvalidEnhancementsError struct {
	Line int
	Msg  string
}

func (e *InvalidEnhancementsError) Error() string {
	return fmt.Sprintf("invalid enhancements config at line %d: %s", e.Line, e.Msg)
}

// Enhancements is a compiled rule set: the project's own rules plus named bases.
type Enhancements struct {
	Version int
	Bases   []string
	Rules   []Rule

	baseRules []Rule
}

// Parse compiles raw rule text on top of the given base rule sets.
// Syntax errors are reported as *InvalidEnhancementsError.
func Parse(raw string, bases []string) (*Enhancements, error) {
	rules, err := parseRules(raw)
	if err != nil {
		return nil, err
	}
	return build(bases, rules)
}

func build(bases []string, rules []Rule) (*Enhancements, error) {
	var baseRules []Rule
	for _, name := range bases {
		if name == "" {
			continue
		}
		base, ok := lookupBase(name)
		if !ok {
			return nil, fmt.Errorf("unknown enhancements base %q", name)
		}
		baseRules = append(baseRules, base...)
	}

	return &Enhancements{
		Version:   LatestVersion,
		Bases:     nonEmpty(bases),
		Rules:     rules,
		baseRules: baseRules,
	}, nil
}

func (e *Enhancements) effectiveRules() []Rule {
	out := make([]Rule, 0, len(e.baseRules)+len(e.Rules))
	out = append(out, e.baseRules...)
	return append(out, e.Rules...)
}

func parseRules(raw string) ([]Rule, error) {
	var rules []Rule
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseRule(line)
		if err != nil {
			return nil, &InvalidEnhancementsError{Line: i + 1, Msg: err.Error()}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(line string) (Rule, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return Rule{}, err
	}

	var rule Rule
	for _, tok := range tokens {
		if tok.action {
			a, err := parseAction(tok.text)
			if err != nil {
				return Rule{}, err
			}
			rule.Actions = append(rule.Actions, a)
			continue
		}
		if len(rule.Actions) > 0 {
			return Rule{}, fmt.Errorf("matcher %q after actions", tok.text)
		}

		key, pattern, ok := strings.Cut(tok.text, ":")
		if !ok || key == "" {
			return Rule{}, fmt.Errorf("invalid matcher %q", tok.text)
		}
		negated := strings.HasPrefix(key, "!")
		key = strings.TrimPrefix(key, "!")

		m, err := newMatcher(key, pattern, negated)
		if err != nil {
			return Rule{}, err
		}
		rule.Matchers = append(rule.Matchers, m)
	}

	if len(rule.Matchers) == 0 {
		return Rule{}, fmt.Errorf("rule has no matchers")
	}
	if len(rule.Actions) == 0 {
		return Rule{}, fmt.Errorf("rule has no actions")
	}
	return rule, nil
}

type token struct {
	text   string
	action bool
}

// tokenize splits a rule line on whitespace, honoring double-quoted matcher values.
func tokenize(line string) ([]token, error) {
	var (
		tokens  []token
		current strings.Builder
		quoted  bool
	)

	flush := func() {
		if current.Len() == 0 {
			return
		}
		text := current.String()
		tokens = append(tokens, token{
			text:   text,
			action: strings.HasPrefix(text, "+") || strings.HasPrefix(text, "-"),
		})
		current.Reset()
	}

	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case (r == ' ' || r == '\t') && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return tokens, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
