package fingerprinting

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/grouper/internal/event"
)

func boolPtr(b bool) *bool { return &b }

func exceptionEvent(platform, excType, value string, frames ...event.Frame) *event.Event {
	return &event.Event{
		Platform: platform,
		Exception: &event.Exceptions{Values: []event.Exception{{
			Type:       excType,
			Value:      value,
			Stacktrace: &event.Stacktrace{Frames: frames},
		}}},
	}
}

// =============================================================================
// Parse Tests
// =============================================================================

func TestParse_InvalidRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantLine int
	}{
		{name: "missing arrow", raw: "type:Foo foo", wantLine: 1},
		{name: "missing fingerprint", raw: "type:Foo ->", wantLine: 1},
		{name: "missing matchers", raw: "-> foo", wantLine: 1},
		{name: "unknown matcher", raw: "color:red -> foo", wantLine: 1},
		{name: "unknown attribute", raw: `type:Foo -> foo color="red"`, wantLine: 1},
		{name: "unquoted attribute", raw: "type:Foo -> foo title=bar", wantLine: 1},
		{name: "token after attribute", raw: `type:Foo -> foo title="x" bar`, wantLine: 1},
		{name: "unterminated variable", raw: "type:Foo -> {{ type", wantLine: 1},
		{name: "unterminated quote", raw: `message:"oops -> foo`, wantLine: 1},
		{name: "error on later line", raw: "# rules\ntype:Foo -> foo\n\nbogus", wantLine: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			_, err := Parse(tt.raw, nil)

			// Assert
			var invalid *InvalidFingerprintingError
			require.True(t, errors.As(err, &invalid), "expected InvalidFingerprintingError, got %v", err)
			assert.Equal(t, tt.wantLine, invalid.Line)
		})
	}
}

func TestParse_RuleShape(t *testing.T) {
	t.Parallel()

	// Act
	rules, err := Parse(`error.type:DatabaseUnavailable !tags.env:"dev box" -> database-unavailable, {{ transaction }} title="DB down: {{ type }}"`, nil)

	// Assert
	require.NoError(t, err)
	require.Len(t, rules.Rules, 1)
	rule := rules.Rules[0]
	assert.Equal(t, []string{"database-unavailable", "{{ transaction }}"}, rule.Fingerprint)
	assert.Equal(t, map[string]string{"title": "DB down: {{ type }}"}, rule.Attributes)
	assert.Equal(t,
		`error.type:DatabaseUnavailable !tags.env:"dev box" -> database-unavailable, {{ transaction }} title="DB down: {{ type }}"`,
		rule.Text())

	reparsed, err := Parse(rule.Text(), nil)
	require.NoError(t, err)
	assert.Equal(t, rule.Text(), reparsed.Rules[0].Text(), "canonical text parses back to itself")
}

func TestParse_UnknownBase(t *testing.T) {
	t.Parallel()

	_, err := Parse("", []string{"nope@2000-01-01"})

	require.Error(t, err)
}

// =============================================================================
// Match Tests
// =============================================================================

func TestRules_Match(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		bases     []string
		event     *event.Event
		wantMatch bool
		wantFP    []string
		builtin   bool
	}{
		{
			name:      "exception type",
			raw:       "type:DatabaseUnavailable -> db",
			event:     exceptionEvent("python", "DatabaseUnavailable", "timeout"),
			wantMatch: true,
			wantFP:    []string{"db"},
		},
		{
			name:      "value is case insensitive glob",
			raw:       `value:"*connection refused*" -> conn`,
			event:     exceptionEvent("python", "OSError", "Connection Refused by peer"),
			wantMatch: true,
			wantFP:    []string{"conn"},
		},
		{
			name:  "exception matchers must hit the same exception",
			raw:   "type:A value:two -> x",
			event: &event.Event{Exception: &event.Exceptions{Values: []event.Exception{{Type: "A", Value: "one"}, {Type: "B", Value: "two"}}}},
		},
		{
			name: "frame matchers on one frame",
			raw:  "function:handle* app:yes -> handler",
			event: exceptionEvent("python", "E", "v",
				event.Frame{Function: "handle_request", InApp: boolPtr(false)},
				event.Frame{Function: "handle_db", InApp: boolPtr(true)},
			),
			wantMatch: true,
			wantFP:    []string{"handler"},
		},
		{
			name: "frame matchers split across frames do not match",
			raw:  "function:handle_request app:yes -> handler",
			event: exceptionEvent("python", "E", "v",
				event.Frame{Function: "handle_request", InApp: boolPtr(false)},
				event.Frame{Function: "other", InApp: boolPtr(true)},
			),
		},
		{
			name:      "event level matchers",
			raw:       "logger:celery.* level:error -> celery-errors",
			event:     &event.Event{Logger: "celery.worker", Level: "error"},
			wantMatch: true,
			wantFP:    []string{"celery-errors"},
		},
		{
			name:  "missing tag does not match",
			raw:   "tags.server:web-* -> web",
			event: &event.Event{Tags: event.Tags{{Key: "env", Value: "prod"}}},
		},
		{
			name:      "negated tag matches when absent",
			raw:       "!tags.server:web-* -> not-web",
			event:     &event.Event{},
			wantMatch: true,
			wantFP:    []string{"not-web"},
		},
		{
			name:      "project rules beat bases",
			raw:       "type:ChunkLoadError -> mine",
			bases:     []string{"javascript@2024-02-02"},
			event:     exceptionEvent("javascript", "ChunkLoadError", "Loading chunk 7 failed"),
			wantMatch: true,
			wantFP:    []string{"mine"},
		},
		{
			name:      "builtin chunk load error",
			bases:     []string{"javascript@2024-02-02"},
			event:     exceptionEvent("javascript", "ChunkLoadError", "Loading chunk 7 failed"),
			wantMatch: true,
			wantFP:    []string{"chunkloaderror"},
			builtin:   true,
		},
		{
			name:  "builtin scoped to javascript",
			bases: []string{"javascript@2024-02-02"},
			event: exceptionEvent("python", "ChunkLoadError", "Loading chunk 7 failed"),
		},
		{
			name:  "builtin hydration error",
			bases: []string{"javascript@2024-02-02"},
			event: &event.Event{
				Platform: "javascript",
				Message:  "Text content does not match server-rendered HTML.",
				Tags:     event.Tags{{Key: "transaction", Value: "/checkout"}},
			},
			wantMatch: true,
			wantFP:    []string{"hydrationerror", "{{ tags.transaction }}"},
			builtin:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			rules, err := Parse(tt.raw, tt.bases)
			require.NoError(t, err)

			// Act
			m := rules.Match(tt.event)

			// Assert
			if !tt.wantMatch {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.wantFP, m.Fingerprint)
			assert.Equal(t, tt.builtin, m.Rule.IsBuiltin)
		})
	}
}

// =============================================================================
// JSON Tests
// =============================================================================

func TestRules_JSONRestoresMatching(t *testing.T) {
	t.Parallel()

	// Arrange
	rules, err := Parse(`!type:Ignored message:"*timeout*" -> timeouts title="Timeout"`, []string{"javascript@2024-02-02"})
	require.NoError(t, err)
	data, err := rules.ToJSON()
	require.NoError(t, err)

	ev := exceptionEvent("javascript", "ChunkLoadError", "request timeout")

	// Act
	restored, err := FromJSON(data, rules.Bases)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, rules.Bases, restored.Bases)
	require.Len(t, restored.Rules, 1)
	assert.Equal(t, rules.Rules[0].Text(), restored.Rules[0].Text())
	assert.Equal(t, rules.Match(ev).Fingerprint, restored.Match(ev).Fingerprint)
}

func TestFromJSON_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  string
		bases []string
	}{
		{name: "not json", data: "{"},
		{name: "wrong version", data: `{"version":99,"rules":[]}`},
		{name: "unknown matcher", data: `{"version":1,"rules":[{"matchers":[["color","red"]],"fingerprint":["x"]}]}`},
		{name: "unknown base", data: `{"version":1,"rules":[]}`, bases: []string{"nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := FromJSON([]byte(tt.data), tt.bases)

			assert.Error(t, err)
		})
	}
}

func TestRule_ToJSON(t *testing.T) {
	t.Parallel()

	// Arrange
	rules, err := Empty([]string{"javascript@2024-02-02"})
	require.NoError(t, err)
	m := rules.Match(exceptionEvent("javascript", "ChunkLoadError", ""))
	require.NotNil(t, m)

	// Act
	out := m.Rule.ToJSON()

	// Assert
	assert.Equal(t, "family:javascript type:ChunkLoadError -> chunkloaderror", out["text"])
	assert.Equal(t, true, out["is_builtin"])
	assert.Equal(t, []any{[]any{"family", "javascript"}, []any{"type", "ChunkLoadError"}}, out["matchers"])

	_, err = json.Marshal(out)
	assert.NoError(t, err)
}

// =============================================================================
// ApplyServerFingerprinting Tests
// =============================================================================

func TestApplyServerFingerprinting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		raw              string
		event            *event.Event
		allowCustomTitle bool
		wantFingerprint  []string
		wantTitle        string
		wantClient       []string
		wantRule         bool
		wantInfo         bool
	}{
		{
			name:     "nothing to record",
			raw:      "type:Other -> other",
			event:    exceptionEvent("python", "ValueError", "bad"),
			wantInfo: false,
		},
		{
			name: "explicit lone default is not captured",
			raw:  "type:Other -> other",
			event: &event.Event{
				Fingerprint: []string{"{{default}}"},
			},
			wantFingerprint: []string{"{{default}}"},
			wantInfo:        false,
		},
		{
			name: "client fingerprint captured without match",
			raw:  "type:Other -> other",
			event: &event.Event{
				Fingerprint: []string{"{{ default }}", "extra"},
			},
			wantFingerprint: []string{"{{ default }}", "extra"},
			wantClient:      []string{"{{ default }}", "extra"},
			wantInfo:        true,
		},
		{
			name:             "match replaces fingerprint and title",
			raw:              `type:ValueError -> value-error, {{ type }} title="Bad value: {{ value }}"`,
			event:            exceptionEvent("python", "ValueError", "bad input"),
			allowCustomTitle: true,
			wantFingerprint:  []string{"value-error", "{{ type }}"},
			wantTitle:        "Bad value: bad input",
			wantRule:         true,
			wantInfo:         true,
		},
		{
			name:            "title ignored when not allowed",
			raw:             `type:ValueError -> value-error title="Bad value"`,
			event:           exceptionEvent("python", "ValueError", "bad input"),
			wantFingerprint: []string{"value-error"},
			wantRule:        true,
			wantInfo:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			rules, err := Parse(tt.raw, nil)
			require.NoError(t, err)

			// Act
			ApplyServerFingerprinting(tt.event, rules, tt.allowCustomTitle)

			// Assert
			assert.Equal(t, tt.wantFingerprint, tt.event.Fingerprint)
			assert.Equal(t, tt.wantTitle, tt.event.Title)
			if !tt.wantInfo {
				assert.Nil(t, tt.event.FingerprintInfo)
				return
			}
			require.NotNil(t, tt.event.FingerprintInfo)
			assert.Equal(t, tt.wantClient, tt.event.FingerprintInfo.ClientFingerprint)
			assert.Equal(t, tt.wantRule, tt.event.FingerprintInfo.MatchedRule != nil)
		})
	}
}
