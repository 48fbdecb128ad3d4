package strategy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxMessageLength bounds the message text that takes part in grouping.
const maxMessageLength = 1024

type parameterizer struct {
	re          *regexp.Regexp
	replacement string
}

// parameterizers run in order; earlier patterns win over the generic int match.
var parameterizers = []parameterizer{
	{regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), "<uuid>"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)?\b`), "<date>"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), "<ip>"},
	{regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`), "<hex>"},
	{regexp.MustCompile(`\b\d+\b`), "<int>"},
}

func normalizeMessage(msg string, opts Options) string {
	msg = strings.ToValidUTF8(strings.TrimSpace(msg), "\uFFFD")
	if len(msg) > maxMessageLength {
		cut := maxMessageLength
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	if opts.ParameterizeMessages {
		msg = parameterize(msg)
	}
	return msg
}

func parameterize(msg string) string {
	for _, p := range parameterizers {
		msg = p.re.ReplaceAllString(msg, p.replacement)
	}
	return msg
}
