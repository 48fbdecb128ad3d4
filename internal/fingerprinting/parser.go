package fingerprinting

import (
	"fmt"
	"strings"
)

// InvalidFingerprintingError reports a syntax error in user-supplied fingerprinting rules.
type InvalidFingerprintingError struct {
	Line int
	Msg  string
}

func (e *InvalidFingerprintingError) Error() string {
	return fmt.Sprintf("invalid fingerprinting config at line %d: %s", e.Line, e.Msg)
}

// knownAttributes are the attributes a rule may carry after its fingerprint.
var knownAttributes = map[string]bool{
	"title": true,
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
			return nil, &InvalidFingerprintingError{Line: i + 1, Msg: err.Error()}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseRule(line string) (Rule, error) {
	left, right, ok := cutArrow(line)
	if !ok {
		return Rule{}, fmt.Errorf("missing '->'")
	}

	var rule Rule
	words, err := splitWords(left)
	if err != nil {
		return Rule{}, err
	}
	for _, w := range words {
		key, pattern, ok := strings.Cut(w, ":")
		if !ok || key == "" || key == "!" {
			return Rule{}, fmt.Errorf("invalid matcher %q", w)
		}
		negated := strings.HasPrefix(key, "!")
		m, err := newMatcher(strings.TrimPrefix(key, "!"), pattern, negated)
		if err != nil {
			return Rule{}, err
		}
		rule.Matchers = append(rule.Matchers, m)
	}
	if len(rule.Matchers) == 0 {
		return Rule{}, fmt.Errorf("rule has no matchers")
	}

	rule.Fingerprint, rule.Attributes, err = parseFingerprint(right)
	if err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// cutArrow splits a rule line at the first `->` outside of quotes.
func cutArrow(line string) (string, string, bool) {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && quoted:
			i++
		case line[i] == '"':
			quoted = !quoted
		case !quoted && strings.HasPrefix(line[i:], "->"):
			return line[:i], line[i+2:], true
		}
	}
	return "", "", false
}

// splitWords splits matchers on whitespace. Quotes group a value and are removed.
func splitWords(s string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		case c == '"':
			value, n, err := readQuoted(s[i:])
			if err != nil {
				return nil, err
			}
			current.WriteString(value)
			i += n - 1
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words, nil
}

// parseFingerprint reads the comma or whitespace separated tokens and the trailing
// `name="value"` attributes on the right-hand side of a rule.
func parseFingerprint(s string) ([]string, map[string]string, error) {
	var (
		tokens []string
		attrs  map[string]string
	)

	addToken := func(tok string) error {
		if attrs != nil {
			return fmt.Errorf("fingerprint value %q after attributes", tok)
		}
		tokens = append(tokens, tok)
		return nil
	}

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == ',':
			i++

		case strings.HasPrefix(s[i:], "{{"):
			end := strings.Index(s[i:], "}}")
			if end < 0 {
				return nil, nil, fmt.Errorf("unterminated variable")
			}
			if err := addToken(s[i : i+end+2]); err != nil {
				return nil, nil, err
			}
			i += end + 2

		case c == '"':
			value, n, err := readQuoted(s[i:])
			if err != nil {
				return nil, nil, err
			}
			if err := addToken(value); err != nil {
				return nil, nil, err
			}
			i += n

		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t,=\"", rune(s[j])) {
				j++
			}
			word := s[i:j]

			if j < len(s) && s[j] == '=' {
				if !knownAttributes[word] {
					return nil, nil, fmt.Errorf("unknown attribute %q", word)
				}
				if j+1 >= len(s) || s[j+1] != '"' {
					return nil, nil, fmt.Errorf("attribute %q must be quoted", word)
				}
				value, n, err := readQuoted(s[j+1:])
				if err != nil {
					return nil, nil, err
				}
				if attrs == nil {
					attrs = make(map[string]string)
				}
				attrs[word] = value
				i = j + 1 + n
				continue
			}

			if err := addToken(word); err != nil {
				return nil, nil, err
			}
			i = j
		}
	}

	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("rule has no fingerprint")
	}
	return tokens, attrs, nil
}

// readQuoted reads a double-quoted string starting at s[0]. It returns the unescaped
// value and the number of bytes consumed including both quotes.
func readQuoted(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			}
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated quote")
}
