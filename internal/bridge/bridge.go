// Package bridge translates playback commands into engine calls and
// engine callbacks into a multicast event stream.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"soundbridge.dev/internal/command"
	"soundbridge.dev/internal/engine"
	"soundbridge.dev/internal/event"
	"soundbridge.dev/internal/stream"
)

// Bridge errors
var (
	ErrInvalidCommand = errors.New("invalid command")
	ErrSoundNotFound  = errors.New("sound not found")
	ErrBridgeClosed   = errors.New("bridge is closed")
)

// Bridge owns the sound registry and the outbound event stream for one
// engine instance. Commands are dispatched one at a time, in order;
// engine callbacks publish events as they fire.
type Bridge struct {
	engine engine.Engine
	events *stream.Broker[event.Event]

	mu     sync.Mutex
	reg    map[string]*entry
	order  []string
	closed bool
}

// entry pairs a handle with the scope it was created under. Entries
// persist until teardown; stop and finish do not prune them.
type entry struct {
	handle engine.Handle
	src    string
	scope  []string
}

// New creates a bridge over the given engine
func New(eng engine.Engine) *Bridge {
	slog.Debug("creating bridge")
	return &Bridge{
		engine: eng,
		events: stream.NewBroker[event.Event](stream.DefaultBuffer),
		reg:    make(map[string]*entry),
	}
}

// Events subscribes to the full, unfiltered event stream. Multiple
// subscribers each get every event.
func (b *Bridge) Events() *stream.Subscription[event.Event] {
	return b.events.Subscribe()
}

// SoundCount reports how many sounds the registry currently tracks
func (b *Bridge) SoundCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.reg)
}

// Run consumes commands from the channel until it closes or the
// context is cancelled. No command is dispatched before the engine
// reports ready. An unknown sound id ends the run; an invalid command
// is fatal only to its own dispatch.
func (b *Bridge) Run(ctx context.Context, commands <-chan *command.Command) error {
	slog.Debug("bridge waiting for engine readiness")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.engine.Ready():
	}
	slog.Debug("engine ready, consuming commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				slog.Debug("command stream ended")
				return nil
			}
			if err := b.Dispatch(ctx, cmd); err != nil {
				if errors.Is(err, ErrSoundNotFound) {
					return err
				}
				slog.Error("command dispatch failed", "error", err)
			}
		}
	}
}

// Dispatch applies one command. Priority: a command with an id targets
// that sound, a global action targets the engine, anything else must
// carry a src and creates a new sound.
func (b *Bridge) Dispatch(ctx context.Context, cmd *command.Command) error {
	if cmd == nil {
		err := fmt.Errorf("%w: nil command", ErrInvalidCommand)
		slog.Error("dispatch failed", "error", err)
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		slog.Error("dispatch failed: bridge closed")
		return ErrBridgeClosed
	}
	b.mu.Unlock()

	switch {
	case cmd.ID != "":
		return b.update(cmd)
	case cmd.Action.Global():
		return b.global(cmd)
	default:
		return b.create(ctx, cmd)
	}
}

// update applies seek, action, and volume changes to a registered
// sound, in that fixed order, then always emits a synthetic update
// event with the resulting state. Zero-valued fields are absent.
func (b *Bridge) update(cmd *command.Command) error {
	b.mu.Lock()
	ent, ok := b.reg[cmd.ID]
	b.mu.Unlock()

	if !ok {
		err := fmt.Errorf("%w: %s", ErrSoundNotFound, cmd.ID)
		slog.Error("update failed: unknown sound id", "sound_id", cmd.ID, "error", err)
		b.events.Fail(err)
		return err
	}

	h := ent.handle
	slog.Debug("updating sound",
		"sound_id", cmd.ID,
		"action", cmd.Action.String(),
		"position", cmd.Position,
		"relative", cmd.Relative,
		"progress", cmd.Progress,
		"volume", cmd.Volume)

	if cmd.Position != 0 {
		if err := h.SetPosition(cmd.Position); err != nil {
			slog.Error("absolute seek failed", "sound_id", cmd.ID, "error", err)
		}
	}
	if cmd.Relative != 0 {
		target := h.Status().Position + cmd.Relative
		if err := h.SetPosition(target); err != nil {
			slog.Error("relative seek failed", "sound_id", cmd.ID, "error", err)
		}
	}
	if cmd.Progress != 0 {
		if st := h.Status(); st.Duration > 0 {
			target := int64(cmd.Progress * float64(st.Duration))
			if err := h.SetPosition(target); err != nil {
				slog.Error("progress seek failed", "sound_id", cmd.ID, "error", err)
			}
		}
	}

	switch cmd.Action {
	case command.ActionPlay, command.ActionResume:
		// At most one sound plays at a time, every other sound is
		// paused before this one starts.
		b.pauseOthers(cmd.ID)
		var err error
		if cmd.Action == command.ActionResume {
			err = h.Resume()
		} else {
			err = h.Play()
		}
		if err != nil {
			slog.Error("play action failed", "sound_id", cmd.ID, "error", err)
		}
	case command.ActionPause:
		if err := h.Pause(); err != nil {
			slog.Error("pause action failed", "sound_id", cmd.ID, "error", err)
		}
	case command.ActionStop:
		if err := h.Stop(); err != nil {
			slog.Error("stop action failed", "sound_id", cmd.ID, "error", err)
		}
	case command.ActionNone:
	default:
		slog.Warn("global action ignored on targeted command",
			"sound_id", cmd.ID, "action", cmd.Action.String())
	}

	if cmd.Volume != 0 {
		if err := h.SetVolume(cmd.Volume); err != nil {
			slog.Error("volume change failed", "sound_id", cmd.ID, "error", err)
		}
	}

	b.publish(b.eventFrom(event.KindUpdate, h.Status(), ent.scope))
	return nil
}

// pauseOthers pauses every registered sound except the given one, in
// creation order
func (b *Bridge) pauseOthers(exceptID string) {
	b.mu.Lock()
	others := make([]engine.Handle, 0, len(b.order))
	for _, id := range b.order {
		if id == exceptID {
			continue
		}
		if ent, ok := b.reg[id]; ok {
			others = append(others, ent.handle)
		}
	}
	b.mu.Unlock()

	for _, h := range others {
		if err := h.Pause(); err != nil {
			slog.Error("failed to pause sound for exclusive playback", "sound_id", h.ID(), "error", err)
		}
	}
}

// global invokes an engine-wide action
func (b *Bridge) global(cmd *command.Command) error {
	slog.Debug("dispatching global action", "action", cmd.Action.String())

	var err error
	switch cmd.Action {
	case command.ActionPauseAll:
		err = b.engine.PauseAll()
	case command.ActionResumeAll:
		err = b.engine.ResumeAll()
	case command.ActionStopAll:
		err = b.engine.StopAll()
	case command.ActionMuteAll:
		err = b.engine.MuteAll()
	case command.ActionUnmuteAll:
		err = b.engine.UnmuteAll()
	default:
		err = fmt.Errorf("%w: unsupported global action %q", ErrInvalidCommand, cmd.Action.String())
		slog.Error("global dispatch failed", "error", err)
		return err
	}

	if err != nil {
		slog.Error("global action failed", "action", cmd.Action.String(), "error", err)
	}
	return err
}

// create requests a new sound for cmd.Src. The sound loads eagerly
// but does not autoplay. A failed creation emits a non-terminal
// error-variant event instead of returning an error; a missing src is
// an InvalidCommand returned to the caller with no event.
func (b *Bridge) create(ctx context.Context, cmd *command.Command) error {
	if cmd.Src == "" {
		err := fmt.Errorf("%w: missing source", ErrInvalidCommand)
		slog.Error("creation failed", "error", err)
		return err
	}

	scope := append([]string(nil), cmd.Scope...)

	h, err := b.engine.CreateSound(ctx, cmd.Src, b.callbacksFor(cmd.Src, scope))
	if err != nil {
		slog.Error("sound creation failed", "src", cmd.Src, "error", err)
		b.publish(event.ErrorEvent("", cmd.Src, scope, ""))
		return nil
	}

	b.mu.Lock()
	b.reg[h.ID()] = &entry{handle: h, src: cmd.Src, scope: scope}
	b.order = append(b.order, h.ID())
	total := len(b.reg)
	b.mu.Unlock()

	slog.Info("sound registered", "sound_id", h.ID(), "src", cmd.Src, "scope", scope, "total_sounds", total)
	return nil
}

// callbacksFor builds the engine callbacks that normalize lifecycle
// transitions to events. A resumed sound reports play; subscribers
// never see a separate resume kind.
func (b *Bridge) callbacksFor(src string, scope []string) engine.Callbacks {
	return engine.Callbacks{
		OnLoad: func(st engine.Status) {
			if st.ReadyState == engine.ReadyFailed {
				slog.Debug("publishing load error", "sound_id", st.ID, "src", src)
				b.publish(event.ErrorEvent(st.ID, src, scope, ""))
				return
			}
			b.publish(b.eventFrom(event.KindLoad, st, scope))
		},
		OnPlay: func(st engine.Status) {
			b.publish(b.eventFrom(event.KindPlay, st, scope))
		},
		OnResume: func(st engine.Status) {
			b.publish(b.eventFrom(event.KindPlay, st, scope))
		},
		OnPause: func(st engine.Status) {
			b.publish(b.eventFrom(event.KindPause, st, scope))
		},
		OnStop: func(st engine.Status) {
			b.publish(b.eventFrom(event.KindStop, st, scope))
		},
		OnFinish: func(st engine.Status) {
			b.publish(b.eventFrom(event.KindFinish, st, scope))
		},
		WhilePlaying: func(st engine.Status) {
			b.publish(b.eventFrom(event.KindPlaying, st, scope))
		},
		OnFailure: func(st engine.Status, cause error) {
			slog.Error("sound failure reported", "sound_id", st.ID, "error", cause)
			ev := b.eventFrom(event.KindFailure, st, scope)
			if cause != nil {
				ev.Reason = cause.Error()
			}
			b.publish(ev)
		},
	}
}

// eventFrom builds an event from a status snapshot. The playing flag
// is recomputed every time, and a muted sound always reports volume 0.
func (b *Bridge) eventFrom(kind event.Kind, st engine.Status, scope []string) event.Event {
	volume := st.Volume
	if st.Muted {
		volume = 0
	}
	return event.Event{
		Kind:     kind,
		ID:       st.ID,
		Src:      st.Src,
		Position: st.Position,
		Duration: st.Duration,
		Volume:   volume,
		Paused:   st.Paused,
		Playing:  !st.Paused && st.PlayState == engine.PlayActive,
		Scope:    scope,
	}
}

// publish forwards an event unless the bridge has been torn down.
// Engine callbacks can outlive Close, so late events are dropped.
func (b *Bridge) publish(ev event.Event) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if closed {
		slog.Debug("event after close dropped", "kind", ev.Kind.String(), "sound_id", ev.ID)
		return
	}
	b.events.Publish(ev)
}

// Close clears the registry, resets the engine, and ends the event
// stream. The engine instance itself stays open for its owner to
// close. Close is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	count := len(b.reg)
	b.reg = make(map[string]*entry)
	b.order = nil
	b.mu.Unlock()

	if err := b.engine.Reboot(); err != nil {
		slog.Error("engine reboot during close failed", "error", err)
	}
	b.events.Close()

	slog.Debug("bridge closed", "sounds_discarded", count)
	return nil
}
