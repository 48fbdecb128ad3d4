package fingerprinting

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/rafaeljc/grouper/internal/event"
)

type category uint8

const (
	categoryEvent category = iota
	categoryException
	categoryFrame
)

// matcherAliases maps every accepted matcher key to its canonical name.
var matcherAliases = map[string]string{
	"type":           "type",
	"error.type":     "type",
	"value":          "value",
	"error.value":    "value",
	"message":        "message",
	"logger":         "logger",
	"level":          "level",
	"function":       "function",
	"stack.function": "function",
	"module":         "module",
	"stack.module":   "module",
	"path":           "path",
	"stack.abs_path": "path",
	"package":        "package",
	"stack.package":  "package",
	"family":         "family",
	"app":            "app",
	"stack.app":      "app",
	"sdk":            "sdk",
	"release":        "release",
}

// caseInsensitive lists canonical keys whose values are compared lowercased.
var caseInsensitive = map[string]bool{
	"value":   true,
	"message": true,
	"path":    true,
	"package": true,
}

// Matcher is a single `[!]key:pattern` condition of a rule.
type Matcher struct {
	// Key is the key as written; canonical is its normalized form.
	Key     string
	Pattern string
	Negated bool

	canonical string
	tag       string
	glob      glob.Glob
}

func newMatcher(key, pattern string, negated bool) (Matcher, error) {
	m := Matcher{Key: key, Pattern: pattern, Negated: negated}

	if tag, ok := strings.CutPrefix(key, "tags."); ok {
		if tag == "" {
			return m, fmt.Errorf("empty tag name")
		}
		m.canonical, m.tag = "tags", tag
	} else {
		canonical, ok := matcherAliases[key]
		if !ok {
			return m, fmt.Errorf("unknown matcher %q", key)
		}
		m.canonical = canonical
	}

	var (
		g   glob.Glob
		err error
	)
	switch {
	case m.canonical == "path" || m.canonical == "package":
		g, err = glob.Compile(strings.ToLower(normalizePath(pattern)), '/')
	case m.canonical == "app":
		switch strings.ToLower(pattern) {
		case "yes", "true", "1", "no", "false", "0":
		default:
			return m, fmt.Errorf("invalid app value %q", pattern)
		}
	case caseInsensitive[m.canonical]:
		g, err = glob.Compile(strings.ToLower(pattern))
	default:
		g, err = glob.Compile(pattern)
	}
	if err != nil {
		return m, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	m.glob = g
	return m, nil
}

func (m *Matcher) category() category {
	switch m.canonical {
	case "type", "value":
		return categoryException
	case "function", "module", "path", "package", "app":
		return categoryFrame
	default:
		return categoryEvent
	}
}

func (m *Matcher) match(s string) bool {
	if caseInsensitive[m.canonical] {
		s = strings.ToLower(s)
	}
	return m.glob.Match(s)
}

func (m *Matcher) matchesEvent(ev *event.Event) bool {
	var ok bool
	switch m.canonical {
	case "message":
		msg := ev.FormattedMessage()
		if msg == "" {
			if exc := ev.LastException(); exc != nil {
				msg = exc.Value
			}
		}
		ok = m.match(msg)
	case "logger":
		ok = m.match(ev.Logger)
	case "level":
		ok = m.match(ev.Level)
	case "release":
		ok = m.match(ev.Release)
	case "family":
		ok = matchFamily(m.Pattern, event.Family(ev.Platform))
	case "sdk":
		ok = ev.SDK != nil && m.match(ev.SDK.Name)
	case "tags":
		value, found := ev.Tags.Get(m.tag)
		ok = found && m.match(value)
	}
	return ok != m.Negated
}

func (m *Matcher) matchesException(exc *event.Exception) bool {
	var ok bool
	switch m.canonical {
	case "type":
		ok = m.match(exc.Type)
	case "value":
		ok = m.match(exc.Value)
	}
	return ok != m.Negated
}

func (m *Matcher) matchesFrame(f *event.Frame) bool {
	var ok bool
	switch m.canonical {
	case "function":
		ok = m.match(f.Function)
	case "module":
		ok = m.match(f.Module)
	case "path":
		for _, p := range []string{f.AbsPath, f.Filename} {
			if p != "" && m.glob.Match(strings.ToLower(normalizePath(p))) {
				ok = true
				break
			}
		}
	case "package":
		ok = f.Package != "" && m.glob.Match(strings.ToLower(normalizePath(f.Package)))
	case "app":
		switch strings.ToLower(m.Pattern) {
		case "yes", "true", "1":
			ok = f.IsInApp()
		default:
			ok = !f.IsInApp()
		}
	}
	return ok != m.Negated
}

func (m *Matcher) String() string {
	prefix := ""
	if m.Negated {
		prefix = "!"
	}
	return prefix + m.Key + ":" + quoteIfNeeded(m.Pattern)
}

// toJSON renders the matcher as a `[key, pattern]` pair; negation is a `!` key prefix.
func (m *Matcher) toJSON() []any {
	key := m.Key
	if m.Negated {
		key = "!" + key
	}
	return []any{key, m.Pattern}
}

func matchFamily(pattern, family string) bool {
	for _, want := range strings.Split(pattern, ",") {
		want = strings.TrimSpace(want)
		if want == "all" || want == family {
			return true
		}
	}
	return false
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t,\"") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
