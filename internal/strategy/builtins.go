package strategy

import (
	"strings"

	"github.com/rafaeljc/grouper/internal/event"
	"github.com/rafaeljc/grouper/internal/grouping"
)

const (
	hintStacktraceWins = "stack trace takes precedence"
	hintThreadCount    = "ignored because it does not contain exactly one thread"
)

// chainedExceptionStrategy groups by exception type, value and stack trace.
type chainedExceptionStrategy struct{}

func (chainedExceptionStrategy) ID() string   { return "chained-exception" }
func (chainedExceptionStrategy) Name() string { return "exception" }

func (chainedExceptionStrategy) Variants(ev *event.Event, ctx *Context) []grouping.KindComponent {
	values := ev.ExceptionValues()
	if len(values) == 0 {
		return nil
	}

	out := make([]grouping.KindComponent, 0, len(variantKinds))
	for _, kind := range variantKinds {
		children := make([]any, 0, len(values))
		for i := range values {
			children = append(children, exceptionComponent(ev, &values[i], ctx, kind))
		}

		var c *grouping.Component
		if len(children) == 1 {
			c = children[0].(*grouping.Component)
		} else {
			c = grouping.NewComponent("chained-exception", children...)
		}
		out = append(out, grouping.KindComponent{Kind: kind, Component: c})
	}
	return out
}

func exceptionComponent(ev *event.Event, exc *event.Exception, ctx *Context, kind grouping.Kind) *grouping.Component {
	var children []any
	if t := strings.TrimSpace(exc.Type); t != "" {
		children = append(children, grouping.NewComponent("type", t))
	}

	var stacktrace *grouping.Component
	if exc.Stacktrace != nil {
		stacktrace = stacktraceComponent(ev, exc.Stacktrace, ctx, kind)
	}

	if v := normalizeMessage(exc.Value, ctx.Options); v != "" {
		value := grouping.NewComponent("value", v)
		if stacktrace != nil && stacktrace.Contributes {
			value.Update(false, hintStacktraceWins)
		}
		children = append(children, value)
	}
	if stacktrace != nil {
		children = append(children, stacktrace)
	}

	return grouping.NewComponent("exception", children...)
}

// threadsStrategy groups by the stack trace of the only captured thread.
type threadsStrategy struct{}

func (threadsStrategy) ID() string   { return "threads" }
func (threadsStrategy) Name() string { return "threads" }

func (threadsStrategy) Variants(ev *event.Event, ctx *Context) []grouping.KindComponent {
	if ev.Threads == nil || len(ev.Threads.Values) == 0 {
		return nil
	}

	var withStacktrace []*event.Stacktrace
	for i := range ev.Threads.Values {
		if st := ev.Threads.Values[i].Stacktrace; st != nil {
			withStacktrace = append(withStacktrace, st)
		}
	}

	out := make([]grouping.KindComponent, 0, len(variantKinds))
	for _, kind := range variantKinds {
		var c *grouping.Component
		if len(withStacktrace) == 1 {
			c = grouping.NewComponent("threads", stacktraceComponent(ev, withStacktrace[0], ctx, kind))
		} else {
			c = grouping.NewComponent("threads")
			c.Update(false, hintThreadCount)
		}
		out = append(out, grouping.KindComponent{Kind: kind, Component: c})
	}
	return out
}

// stacktraceStrategy groups by the top-level stack trace.
type stacktraceStrategy struct{}

func (stacktraceStrategy) ID() string   { return "stacktrace" }
func (stacktraceStrategy) Name() string { return "stack-trace" }

func (stacktraceStrategy) Variants(ev *event.Event, ctx *Context) []grouping.KindComponent {
	if ev.Stacktrace == nil {
		return nil
	}
	out := make([]grouping.KindComponent, 0, len(variantKinds))
	for _, kind := range variantKinds {
		out = append(out, grouping.KindComponent{
			Kind:      kind,
			Component: stacktraceComponent(ev, ev.Stacktrace, ctx, kind),
		})
	}
	return out
}

// messageStrategy groups by the log message.
type messageStrategy struct{}

func (messageStrategy) ID() string   { return "message" }
func (messageStrategy) Name() string { return "message" }

func (messageStrategy) Variants(ev *event.Event, ctx *Context) []grouping.KindComponent {
	msg := normalizeMessage(ev.FormattedMessage(), ctx.Options)
	if msg == "" {
		return nil
	}
	return []grouping.KindComponent{{
		Kind:      grouping.KindDefault,
		Component: grouping.NewComponent("message", msg),
	}}
}
