package strategy

import (
	"path"
	"strings"

	"github.com/rafaeljc/grouper/internal/enhancer"
	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
)

const (
	hintNonAppFrame   = "non app frame"
	hintModuleWins    = "module takes precedence"
	hintNoInAppFrames = "none of the frames are in-app"
)

// variantKinds are the kinds produced by stack-based strategies.
var variantKinds = []grouping.Kind{grouping.KindApp, grouping.KindSystem}

// stacktraceComponent builds the component of st for one variant kind. Enhancements
// are applied first; the app variant then ignores every frame outside application code.
func stacktraceComponent(ev *event.Event, st *event.Stacktrace, ctx *Context, kind grouping.Kind) *grouping.Component {
	if st == nil {
		return grouping.NewComponent("stacktrace")
	}

	states := frameStates(ev, st.Frames, ctx.Enhancements)

	values := make([]any, 0, len(st.Frames))
	anyInApp := false
	for i := range st.Frames {
		state := states[i]
		anyInApp = anyInApp || state.InApp

		fc := frameComponent(&st.Frames[i], ctx.Options)
		switch {
		case !state.Contributes:
			fc.Update(false, state.Hint)
		case kind == grouping.KindApp && !state.InApp:
			fc.Update(false, hintNonAppFrame)
		}
		values = append(values, fc)
	}

	c := grouping.NewComponent("stacktrace", values...)
	if kind == grouping.KindApp && !anyInApp && len(values) > 0 {
		c.Update(false, hintNoInAppFrames)
	}
	return c
}

func frameStates(ev *event.Event, frames []event.Frame, e *enhancer.Enhancements) []enhancer.FrameState {
	if e != nil {
		return e.ApplyToFrames(ev, frames)
	}
	out := make([]enhancer.FrameState, len(frames))
	for i := range frames {
		out[i] = enhancer.FrameState{InApp: frames[i].IsInApp(), Contributes: true}
	}
	return out
}

// frameComponent identifies a frame by module (or file name), function, and, when
// configured, by source context when there is no function name.
func frameComponent(f *event.Frame, opts Options) *grouping.Component {
	var values []any

	module := strings.TrimSpace(f.Module)
	if module != "" {
		values = append(values, grouping.NewComponent("module", module))
	}

	if filename := frameFilename(f); filename != "" {
		fc := grouping.NewComponent("filename", filename)
		if module != "" {
			fc.Update(false, hintModuleWins)
		}
		values = append(values, fc)
	}

	function := strings.TrimSpace(f.Function)
	switch {
	case function != "":
		values = append(values, grouping.NewComponent("function", function))
	case opts.ContextLineFallback && strings.TrimSpace(f.ContextLine) != "":
		values = append(values, grouping.NewComponent("context-line", strings.TrimSpace(f.ContextLine)))
	}

	return grouping.NewComponent("frame", values...)
}

func frameFilename(f *event.Frame) string {
	name := f.Filename
	if name == "" {
		name = f.AbsPath
	}
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(path.Base(name))
}
