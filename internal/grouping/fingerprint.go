package grouping

import (
	"path"
	"regexp"
	"strings"

	"github.com/rafaeljc/grouper/internal/event"
)

// DefaultFingerprintVar is the placeholder token that stands for "the computed grouping".
const DefaultFingerprintVar = "{{ default }}"

var fingerprintVarRegex = regexp.MustCompile(`\{\{\s*(\S+)\s*\}\}`)

// DefaultFingerprint is used when the event carries no fingerprint.
func DefaultFingerprint() []string {
	return []string{DefaultFingerprintVar}
}

// ParseFingerprintVar returns the variable name when the whole token is a `{{ var }}`
// reference, and false otherwise.
func ParseFingerprintVar(token string) (string, bool) {
	loc := fingerprintVarRegex.FindStringSubmatchIndex(token)
	if loc == nil || loc[0] != 0 || loc[1] != len(token) {
		return "", false
	}
	return token[loc[2]:loc[3]], true
}

// IsDefaultFingerprintVar reports whether token is the `{{ default }}` placeholder
// (whitespace inside the braces is not significant).
func IsDefaultFingerprintVar(token string) bool {
	name, ok := ParseFingerprintVar(token)
	return ok && name == "default"
}

// DefaultsReferenced counts the default placeholders in a fingerprint.
func DefaultsReferenced(fingerprint []string) int {
	n := 0
	for _, token := range fingerprint {
		if IsDefaultFingerprintVar(token) {
			n++
		}
	}
	return n
}

// FingerprintValue resolves a fingerprint variable against the event.
// It returns false for variables it does not know.
func FingerprintValue(name string, ev *event.Event) (string, bool) {
	switch name {
	case "transaction":
		return orPlaceholder(ev.Transaction, "<no-transaction>"), true
	case "message":
		msg := ev.FormattedMessage()
		if msg == "" {
			if exc := ev.LastException(); exc != nil {
				msg = exc.Value
			}
		}
		return orPlaceholder(msg, "<no-message>"), true
	case "type", "error.type":
		var ty string
		if exc := ev.LastException(); exc != nil {
			ty = exc.Type
		}
		return orPlaceholder(ty, "<no-type>"), true
	case "value", "error.value":
		var value string
		if exc := ev.LastException(); exc != nil {
			value = exc.Value
		}
		return orPlaceholder(value, "<no-value>"), true
	case "function", "stack.function":
		var fn string
		if f := ev.CrashFrame(); f != nil {
			fn = f.Function
		}
		return orPlaceholder(fn, "<no-function>"), true
	case "path", "stack.abs_path":
		var p string
		if f := ev.CrashFrame(); f != nil {
			p = firstNonEmpty(f.AbsPath, f.Filename)
		}
		return orPlaceholder(p, "<no-abs-path>"), true
	case "stack.filename":
		var p string
		if f := ev.CrashFrame(); f != nil {
			p = firstNonEmpty(f.Filename, f.AbsPath)
		}
		return orPlaceholder(p, "<no-filename>"), true
	case "module", "stack.module":
		var mod string
		if f := ev.CrashFrame(); f != nil {
			mod = f.Module
		}
		return orPlaceholder(mod, "<no-module>"), true
	case "package", "stack.package":
		var pkg string
		if f := ev.CrashFrame(); f != nil && f.Package != "" {
			pkg = path.Base(strings.ReplaceAll(f.Package, `\`, "/"))
		}
		return orPlaceholder(pkg, "<no-package>"), true
	case "level":
		return orPlaceholder(ev.Level, "<no-level>"), true
	case "logger":
		return orPlaceholder(ev.Logger, "<no-logger>"), true
	}

	if tag, ok := strings.CutPrefix(name, "tags."); ok {
		if value, found := ev.Tags.Get(tag); found {
			return value, true
		}
		return "<no-value-for-tag-" + tag + ">", true
	}

	return "", false
}

// ResolveFingerprintValues replaces variable tokens with event values. Literal tokens,
// the default placeholder and unknown variables are returned unchanged.
func ResolveFingerprintValues(fingerprint []string, ev *event.Event) []string {
	out := make([]string, len(fingerprint))
	for i, token := range fingerprint {
		out[i] = token

		name, ok := ParseFingerprintVar(token)
		if !ok || name == "default" {
			continue
		}
		if value, known := FingerprintValue(name, ev); known {
			out[i] = value
		}
	}
	return out
}

// ExpandTitleTemplate substitutes every embedded `{{ var }}` in template.
// Placeholders that cannot be resolved are kept verbatim.
func ExpandTitleTemplate(template string, ev *event.Event) string {
	return fingerprintVarRegex.ReplaceAllStringFunc(template, func(match string) string {
		sub := fingerprintVarRegex.FindStringSubmatch(match)
		if value, ok := FingerprintValue(sub[1], ev); ok {
			return value
		}
		return match
	})
}

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
