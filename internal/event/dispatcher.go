// Package event hands notification requests off to the messaging layer. The
// notification service itself lives outside this engine; all we publish is
// the template key, the recipients, and a payload.
package event

import (
	"context"
	"log/slog"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, templateKey string, recipients []string, payload map[string]any) error
}

// NoopDispatcher is used when messaging is disabled in configuration.
type NoopDispatcher struct {
	logger *slog.Logger
}

func NewNoopDispatcher(logger *slog.Logger) *NoopDispatcher {
	return &NoopDispatcher{logger: logger.With("component", "NoopDispatcher")}
}

func (d *NoopDispatcher) Dispatch(ctx context.Context, templateKey string, recipients []string, payload map[string]any) error {
	d.logger.DebugContext(ctx, "Notification dropped, messaging disabled", "template", templateKey)
	return nil
}
