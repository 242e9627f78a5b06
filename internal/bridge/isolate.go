package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"soundbridge.dev/internal/command"
	"soundbridge.dev/internal/event"
	"soundbridge.dev/internal/stream"
)

// Sink is the inbound end of a bridge: commands sent through it are
// stamped with the sink's scope labels and queued for dispatch.
// Isolation nests, each Isolate call adds one more label.
type Sink struct {
	ch    chan<- *command.Command
	scope []string
}

// NewSink wraps a command channel feeding Bridge.Run
func NewSink(ch chan<- *command.Command) *Sink {
	return &Sink{ch: ch}
}

// Isolate derives a sink that appends label to every command's scope
func (s *Sink) Isolate(label string) *Sink {
	scope := make([]string, len(s.scope), len(s.scope)+1)
	copy(scope, s.scope)
	return &Sink{ch: s.ch, scope: append(scope, label)}
}

// Scope returns the labels this sink stamps onto commands
func (s *Sink) Scope() []string {
	return append([]string(nil), s.scope...)
}

// Send stamps the sink's scope onto cmd and queues it. The original
// command is never mutated; a scoped copy is derived when needed.
func (s *Sink) Send(ctx context.Context, cmd *command.Command) error {
	if cmd == nil {
		err := fmt.Errorf("%w: nil command", ErrInvalidCommand)
		slog.Error("send failed", "error", err)
		return err
	}

	out := cmd
	if len(s.scope) > 0 {
		out = cmd.WithScope(s.scope...)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.ch <- out:
		return nil
	}
}

// Source is the outbound end of a bridge: a view of the event stream
// restricted to events carrying every one of the source's scope
// labels. Isolation nests the same way as on the sink side.
type Source struct {
	bridge *Bridge
	scope  []string
}

// Source returns the unrestricted event source for this bridge
func (b *Bridge) Source() *Source {
	return &Source{bridge: b}
}

// Isolate derives a source restricted to events that also carry label
func (s *Source) Isolate(label string) *Source {
	scope := make([]string, len(s.scope), len(s.scope)+1)
	copy(scope, s.scope)
	return &Source{bridge: s.bridge, scope: append(scope, label)}
}

// Scope returns the labels this source filters on
func (s *Source) Scope() []string {
	return append([]string(nil), s.scope...)
}

// Subscribe opens a subscription delivering only events whose scope
// contains every label this source is isolated to
func (s *Source) Subscribe() *stream.Subscription[event.Event] {
	sub := s.bridge.Events()
	if len(s.scope) == 0 {
		return sub
	}

	labels := append([]string(nil), s.scope...)
	return stream.Filter(sub, func(ev event.Event) bool {
		for _, label := range labels {
			if !ev.InScope(label) {
				return false
			}
		}
		return true
	})
}
