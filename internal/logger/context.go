package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

type projectKey struct{}

type eventKey struct{}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default(). It never returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithProject scopes the context logger to a project. Records logged through the
// returned context carry project_id, and ProjectID reports it.
func WithProject(ctx context.Context, projectID int64) context.Context {
	if id, ok := ProjectID(ctx); ok && id == projectID {
		return ctx
	}
	ctx = context.WithValue(ctx, projectKey{}, projectID)
	return WithContext(ctx, FromContext(ctx).With(slog.Int64("project_id", projectID)))
}

// ProjectID returns the project set by WithProject.
func ProjectID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(projectKey{}).(int64)
	return id, ok
}

// WithEvent scopes the context logger to an event. An empty id, or the id ctx is
// already scoped to, leaves ctx unchanged.
func WithEvent(ctx context.Context, eventID string) context.Context {
	if eventID == "" {
		return ctx
	}
	if id, ok := ctx.Value(eventKey{}).(string); ok && id == eventID {
		return ctx
	}
	ctx = context.WithValue(ctx, eventKey{}, eventID)
	return WithContext(ctx, FromContext(ctx).With(slog.String("event_id", eventID)))
}
