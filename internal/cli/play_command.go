package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"soundbridge.dev/internal/bridge"
	"soundbridge.dev/internal/command"
	"soundbridge.dev/internal/event"
	"soundbridge.dev/internal/journal"
	"soundbridge.dev/internal/stream"
)

// newPlayCommand builds the one-shot play command: resolve the named
// sounds, play them back to back, exit with the outcome.
func newPlayCommand() *cobra.Command {
	var scopes []string
	var timeout time.Duration

	playCmd := &cobra.Command{
		Use:   "play <sound>...",
		Short: "Play sounds and wait for them to finish",
		Long: `Play one or more sounds through the configured engine, sequentially,
waiting for each to finish before starting the next.

Each sound may be a library name (resolved against the alias file and
the library search roots) or a direct file path.

Examples:
  soundbridge play chime                  # library name
  soundbridge play ./sounds/ping.wav      # direct path
  soundbridge play intro chime outro      # back to back
  soundbridge play chime --volume 40      # quieter
  soundbridge play chime --engine silent  # full lifecycle, no audio`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, args, scopes, timeout)
		},
	}

	playCmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scope labels stamped on the sounds' events")
	playCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up on a sound after this long (0 waits forever)")

	return playCmd
}

// runPlay drives a full load/play/finish cycle for each named sound in
// order. All names resolve before anything plays, so a typo in the
// last argument fails before the first sound starts.
func runPlay(cmd *cobra.Command, names []string, scopes []string, timeout time.Duration) error {
	c := cliFromContext(cmd.Context())
	if c == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, c)
	if err != nil {
		return err
	}
	setupLogging(cfg, cmd.ErrOrStderr())
	c.initializeJournal()

	eng, err := c.buildEngine(cfg)
	if err != nil {
		cmd.PrintErrf("Error: %v\n", err)
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			slog.Error("failed to close engine", "error", closeErr)
		}
	}()

	resolver := buildResolver(cfg, c.fsFactory.Production())
	resolved := make([]string, 0, len(names))
	for _, name := range names {
		src, err := resolver.Resolve(name)
		if err != nil {
			cmd.PrintErrf("Error: %v\n", err)
			return err
		}
		slog.Debug("play target resolved", "name", name, "src", src)
		resolved = append(resolved, src)
	}

	b := bridge.New(eng)
	defer b.Close()

	events := b.Events()

	var wg sync.WaitGroup
	if c.journalDB != nil {
		recorder := journal.NewRecorder(c.journalDB, newSessionID())
		journalSub := b.Events()
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Consume(journalSub)
		}()
	}

	for _, src := range resolved {
		err = playNext(cmd.Context(), b, events, eng.Ready(), src, scopes, timeout)
		if err != nil {
			cmd.PrintErrf("Error: %v\n", err)
			break
		}
	}

	b.Close()
	wg.Wait()
	return err
}

// playNext plays one sound to completion under its own timeout.
func playNext(parent context.Context, b *bridge.Bridge, events *stream.Subscription[event.Event], ready <-chan struct{}, src string, scopes []string, timeout time.Duration) error {
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}
	return playOnce(ctx, b, events, ready, src, scopes, timeout)
}

// playOnce loads the sound, plays it by its assigned id, and waits for
// a terminal outcome. Creation never autoplays, so this is the same
// two-command sequence a stream client would send.
func playOnce(ctx context.Context, b *bridge.Bridge, events *stream.Subscription[event.Event], ready <-chan struct{}, src string, scopes []string, timeout time.Duration) error {
	select {
	case <-ctx.Done():
		return waitError(ctx.Err(), timeout)
	case <-ready:
	}

	load := &command.Command{Src: src, Scope: scopes}
	if err := b.Dispatch(ctx, load); err != nil {
		return err
	}

	soundID, err := waitForLoad(ctx, events, src, timeout)
	if err != nil {
		return err
	}
	slog.Debug("sound loaded, starting playback", "sound_id", soundID)

	play := &command.Command{ID: soundID, Action: command.ActionPlay}
	if err := b.Dispatch(ctx, play); err != nil {
		return err
	}

	return waitForFinish(ctx, events, soundID, src, timeout)
}

// waitForLoad consumes events until the sound for src loads or fails
// to load, returning its assigned id.
func waitForLoad(ctx context.Context, events *stream.Subscription[event.Event], src string, timeout time.Duration) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", waitError(ctx.Err(), timeout)
		case ev, ok := <-events.C:
			if !ok {
				return "", streamEnded(events)
			}
			if ev.Src != src {
				continue
			}

			switch ev.Kind {
			case event.KindError:
				if ev.Reason != "" {
					return "", fmt.Errorf("failed to load %s: %s", src, ev.Reason)
				}
				return "", fmt.Errorf("failed to load %s", src)
			case event.KindLoad:
				return ev.ID, nil
			}
		}
	}
}

// waitForFinish consumes events until the sound finishes or fails.
func waitForFinish(ctx context.Context, events *stream.Subscription[event.Event], soundID, src string, timeout time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return waitError(ctx.Err(), timeout)
		case ev, ok := <-events.C:
			if !ok {
				return streamEnded(events)
			}
			if ev.ID != soundID {
				continue
			}

			switch ev.Kind {
			case event.KindFailure, event.KindError:
				if ev.Reason != "" {
					return fmt.Errorf("playback of %s failed: %s", src, ev.Reason)
				}
				return fmt.Errorf("playback of %s failed", src)
			case event.KindFinish:
				slog.Debug("playback finished",
					"sound_id", ev.ID,
					"duration_ms", ev.Duration)
				return nil
			}
		}
	}
}

// streamEnded explains an event stream that closed mid-playback.
func streamEnded(events *stream.Subscription[event.Event]) error {
	if err := events.Err(); err != nil {
		return fmt.Errorf("event stream ended: %w", err)
	}
	return fmt.Errorf("event stream ended before playback finished")
}

// waitError turns a context error into a message a user can act on.
func waitError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s waiting for playback to finish", timeout)
	}
	return err
}
