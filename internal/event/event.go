// Package event defines the error/crash event payload consumed by the grouping engine.
// It mirrors the JSON structure sent by client SDKs, restricted to the fields that
// grouping strategies, fingerprint rules and title templates read.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is a single error or crash report.
// Only the server-side fingerprinting step mutates it (Title, Fingerprint, FingerprintInfo).
type Event struct {
	EventID     string   `json:"event_id,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	Checksum    string   `json:"checksum,omitempty"`
	Fingerprint []string `json:"fingerprint,omitempty"`
	Title       string   `json:"title,omitempty"`
	Message     string   `json:"message,omitempty"`
	Level       string   `json:"level,omitempty"`
	Logger      string   `json:"logger,omitempty"`
	Transaction string   `json:"transaction,omitempty"`
	Release     string   `json:"release,omitempty"`
	Tags        Tags     `json:"tags,omitempty"`

	LogEntry   *LogEntry   `json:"logentry,omitempty"`
	Exception  *Exceptions `json:"exception,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
	Threads    *Threads    `json:"threads,omitempty"`
	SDK        *SDK        `json:"sdk,omitempty"`

	// FingerprintInfo is attached by server-side fingerprinting. A nil value means
	// no client fingerprint was captured and no rule matched.
	FingerprintInfo *FingerprintInfo `json:"_fingerprint_info,omitempty"`

	// GroupingConfig is the configuration persisted with the event at first grouping.
	GroupingConfig *GroupingConfig `json:"grouping_config,omitempty"`
}

// GroupingConfig is the serialized grouping configuration: a versioned id plus the
// effective enhancement blob.
type GroupingConfig struct {
	ID           string `json:"id"`
	Enhancements string `json:"enhancements"`
}

// FingerprintInfo records how the event's fingerprint was decided.
type FingerprintInfo struct {
	ClientFingerprint []string       `json:"client_fingerprint,omitempty"`
	MatchedRule       map[string]any `json:"matched_rule,omitempty"`
}

// MatchedRuleIsBuiltin reports whether the matched fingerprint rule came from a built-in base.
func (fi *FingerprintInfo) MatchedRuleIsBuiltin() bool {
	if fi == nil || fi.MatchedRule == nil {
		return false
	}
	builtin, _ := fi.MatchedRule["is_builtin"].(bool)
	return builtin
}

// LogEntry is the structured log message interface.
type LogEntry struct {
	Message   string `json:"message,omitempty"`
	Formatted string `json:"formatted,omitempty"`
}

// Exceptions wraps the list of chained exceptions. The last value is the outermost one.
type Exceptions struct {
	Values []Exception `json:"values"`
}

// Exception is one entry of an exception chain.
type Exception struct {
	Type       string      `json:"type,omitempty"`
	Value      string      `json:"value,omitempty"`
	Module     string      `json:"module,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Threads wraps the list of thread states captured with the event.
type Threads struct {
	Values []Thread `json:"values"`
}

// Thread is a single captured thread.
type Thread struct {
	Name       string      `json:"name,omitempty"`
	Crashed    bool        `json:"crashed,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Stacktrace holds frames ordered from the outermost call to the crashing frame.
type Stacktrace struct {
	Frames []Frame `json:"frames"`
}

// Frame is a single stack frame.
type Frame struct {
	Function    string `json:"function,omitempty"`
	Module      string `json:"module,omitempty"`
	Filename    string `json:"filename,omitempty"`
	AbsPath     string `json:"abs_path,omitempty"`
	Package     string `json:"package,omitempty"`
	Platform    string `json:"platform,omitempty"`
	ContextLine string `json:"context_line,omitempty"`
	InApp       *bool  `json:"in_app,omitempty"`
}

// IsInApp reports whether the frame belongs to application code. Unknown counts as false.
func (f *Frame) IsInApp() bool {
	return f.InApp != nil && *f.InApp
}

// SDK identifies the client library that sent the event.
type SDK struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// Tag is a single key/value tag pair.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered list of tags. It decodes both the `[[k, v], ...]` and the
// `{"k": "v"}` wire forms; the object form is decoded in document order.
type Tags []Tag

// MarshalJSON encodes tags in the canonical pair-list form.
func (t Tags) MarshalJSON() ([]byte, error) {
	pairs := make([][2]string, len(t))
	for i, tag := range t {
		pairs[i] = [2]string{tag.Key, tag.Value}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON accepts both the pair-list and the object forms.
func (t *Tags) UnmarshalJSON(data []byte) error {
	var pairs [][]*string
	if err := json.Unmarshal(data, &pairs); err == nil {
		out := make(Tags, 0, len(pairs))
		for _, pair := range pairs {
			if len(pair) != 2 || pair[0] == nil || pair[1] == nil {
				continue
			}
			out = append(out, Tag{Key: *pair[0], Value: *pair[1]})
		}
		*t = out
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("invalid tags: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("invalid tags: expected array or object")
	}

	out := Tags{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("invalid tags: %w", err)
		}
		key, _ := keyTok.(string)

		var value *string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("invalid tag %q: %w", key, err)
		}
		if value != nil {
			out = append(out, Tag{Key: key, Value: *value})
		}
	}
	*t = out
	return nil
}

// Get returns the first value recorded for key.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}
