package event

import (
	"encoding/json"
	"fmt"
)

// Parse decodes a JSON event payload.
func Parse(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}

// LastException returns the outermost exception, or nil when the event has none.
func (e *Event) LastException() *Exception {
	if e.Exception == nil || len(e.Exception.Values) == 0 {
		return nil
	}
	return &e.Exception.Values[len(e.Exception.Values)-1]
}

// ExceptionValues returns all chained exceptions (possibly empty).
func (e *Event) ExceptionValues() []Exception {
	if e.Exception == nil {
		return nil
	}
	return e.Exception.Values
}

// FormattedMessage returns the best available human-readable message.
// Order: logentry.formatted, logentry.message, message.
func (e *Event) FormattedMessage() string {
	if e.LogEntry != nil {
		if e.LogEntry.Formatted != "" {
			return e.LogEntry.Formatted
		}
		if e.LogEntry.Message != "" {
			return e.LogEntry.Message
		}
	}
	return e.Message
}

// Stacktraces returns every stacktrace carried by the event: exception stacktraces first,
// then the top-level one, then thread stacktraces.
func (e *Event) Stacktraces() []*Stacktrace {
	var out []*Stacktrace
	for i := range e.ExceptionValues() {
		if st := e.Exception.Values[i].Stacktrace; st != nil {
			out = append(out, st)
		}
	}
	if e.Stacktrace != nil {
		out = append(out, e.Stacktrace)
	}
	if e.Threads != nil {
		for i := range e.Threads.Values {
			if st := e.Threads.Values[i].Stacktrace; st != nil {
				out = append(out, st)
			}
		}
	}
	return out
}

// CrashFrame returns the innermost frame of the most relevant stacktrace: the
// outermost exception's, then the top-level one, then the first thread with frames.
func (e *Event) CrashFrame() *Frame {
	if exc := e.LastException(); exc != nil && exc.Stacktrace != nil {
		if f := lastFrame(exc.Stacktrace); f != nil {
			return f
		}
	}
	if f := lastFrame(e.Stacktrace); f != nil {
		return f
	}
	if e.Threads != nil {
		for i := range e.Threads.Values {
			if f := lastFrame(e.Threads.Values[i].Stacktrace); f != nil {
				return f
			}
		}
	}
	return nil
}

func lastFrame(st *Stacktrace) *Frame {
	if st == nil || len(st.Frames) == 0 {
		return nil
	}
	return &st.Frames[len(st.Frames)-1]
}

// Family returns the platform family used by rule matchers ("native", "javascript", "other").
func Family(platform string) string {
	switch platform {
	case "native", "c", "cocoa", "objc", "swift":
		return "native"
	case "javascript", "node":
		return "javascript"
	default:
		return "other"
	}
}

// FrameFamily resolves the family of a frame, falling back to the event platform.
func (e *Event) FrameFamily(f *Frame) string {
	if f != nil && f.Platform != "" {
		return Family(f.Platform)
	}
	return Family(e.Platform)
}
