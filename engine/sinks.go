package engine

import (
	"context"

	"github.com/hupe1980/opmesh/core"
	"github.com/hupe1980/opmesh/logging"
)

// SinkFunc adapts a function to core.EventSink.
//
// Example:
//
//	sink := engine.SinkFunc(func(ctx context.Context, ev core.Event) {
//	    fmt.Println(ev.Kind, ev.Step, ev.Status)
//	})
type SinkFunc func(ctx context.Context, ev core.Event)

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, ev core.Event) { f(ctx, ev) }

// MultiSink fans every event out to its sinks in order.
type MultiSink []core.EventSink

// Notify forwards ev to every non-nil sink.
func (m MultiSink) Notify(ctx context.Context, ev core.Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, ev)
		}
	}
}

// NoOpSink discards events.
type NoOpSink struct{}

// Notify does nothing.
func (NoOpSink) Notify(context.Context, core.Event) {}

// LoggingSink writes every event to a logger: step events at debug level,
// workflow events at info level, failures at warn level.
type LoggingSink struct {
	Logger logging.Logger
}

// NewLoggingSink creates a LoggingSink. A nil logger discards output.
func NewLoggingSink(l logging.Logger) *LoggingSink {
	return &LoggingSink{Logger: logging.OrNoOp(l)}
}

// Notify logs ev.
func (s *LoggingSink) Notify(_ context.Context, ev core.Event) {
	l := logging.OrNoOp(s.Logger)
	args := []any{
		"kind", string(ev.Kind),
		"execution_id", ev.ID,
		"workflow", ev.Workflow,
		"session_id", ev.SessionID,
		"status", string(ev.Status),
	}
	if ev.Step != "" {
		args = append(args, "step", ev.Step)
	}
	if ev.Error != "" {
		args = append(args, "error", ev.Error)
		l.Warn("Event", args...)
		return
	}
	if ev.Kind == core.EventKindWorkflow {
		l.Info("Event", args...)
		return
	}
	l.Debug("Event", args...)
}

var (
	_ core.EventSink = SinkFunc(nil)
	_ core.EventSink = MultiSink(nil)
	_ core.EventSink = NoOpSink{}
	_ core.EventSink = (*LoggingSink)(nil)
)
