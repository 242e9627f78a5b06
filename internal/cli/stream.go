package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"soundbridge.dev/internal/bridge"
	"soundbridge.dev/internal/command"
	"soundbridge.dev/internal/engine"
	"soundbridge.dev/internal/event"
	"soundbridge.dev/internal/journal"
	"soundbridge.dev/internal/library"
	"soundbridge.dev/internal/stream"
)

// runStreamModeE handles the default behavior: newline-delimited JSON
// commands in on stdin, playback events out on stdout
func runStreamModeE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		slog.Error("CLI instance not found in context")
		return fmt.Errorf("CLI instance not found in context")
	}

	// Handle version flag first
	handled, err := handleVersionFlag(cmd)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}

	setupLogging(cfg, cmd.ErrOrStderr())

	// Refuse to sit silently on a terminal waiting for hand-typed JSON
	interactive, _ := cmd.Flags().GetBool("interactive")
	if !interactive {
		if f, ok := cmd.InOrStdin().(*os.File); ok && cli.isInteractiveTerminal(int(f.Fd())) {
			cmd.PrintErrln("Refusing to read commands from an interactive terminal.")
			cmd.PrintErrln("Pipe newline-delimited JSON commands on stdin, or pass --interactive to type them by hand.")
			return fmt.Errorf("stdin is an interactive terminal")
		}
	}

	cli.initializeJournal()

	eng, err := cli.buildEngine(cfg)
	if err != nil {
		cmd.PrintErrf("Error initializing engine: %v\n", err)
		return err
	}

	resolver := buildResolver(cfg, cli.fsFactory.Production())
	scopes, _ := cmd.Flags().GetStringSlice("scope")

	return cli.runStream(cmd, eng, resolver, scopes)
}

// runStream wires the bridge between stdin commands and stdout events
// and runs it until the command stream ends or a terminal error stops
// the event stream.
func (c *CLI) runStream(cmd *cobra.Command, eng engine.Engine, resolver *library.Resolver, scopes []string) error {
	b := bridge.New(eng)
	defer b.Close()

	commands := make(chan *command.Command)
	sink := bridge.NewSink(commands)
	source := b.Source()
	for _, label := range scopes {
		sink = sink.Isolate(label)
		source = source.Isolate(label)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var wg sync.WaitGroup

	// Event writer: one JSON line per event
	events := source.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeEventStream(cmd.OutOrStdout(), events)
	}()

	// Journal consumer on its own unfiltered subscription so scoped
	// runs still journal everything they cause
	if c.journalDB != nil {
		recorder := journal.NewRecorder(c.journalDB, newSessionID())
		journalSub := b.Events()
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Consume(journalSub)
		}()
	}

	// Command pump: not in the WaitGroup, a blocked stdin read must
	// not hold up process exit after a terminal stream error. Its
	// error lands in a buffered channel before commands closes, so a
	// finished pump is always harvested below.
	pumpErrs := make(chan error, 1)
	go func() {
		defer close(commands)
		pumpErrs <- pumpCommands(ctx, cmd, sink, resolver)
	}()

	err := b.Run(ctx, commands)
	if err != nil && !errors.Is(err, context.Canceled) {
		cmd.PrintErrf("Error: %v\n", err)
	}

	cancel()  // Unblock a pump stuck handing off a command
	b.Close() // Terminate subscriptions so the writers drain and stop
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	select {
	case pumpErr := <-pumpErrs:
		return pumpErr
	default:
		// Pump still blocked on stdin; nothing it reports now matters
		return nil
	}
}

// pumpCommands reads commands from stdin, resolves library names and
// feeds the sink until EOF. Malformed lines are reported and skipped;
// they never abort the stream. A failure of the stream itself does.
func pumpCommands(ctx context.Context, cmd *cobra.Command, sink *bridge.Sink, resolver *library.Resolver) error {
	reader := command.NewReader(cmd.InOrStdin())
	for {
		next, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				slog.Debug("command input exhausted")
				return nil
			}
			cmd.PrintErrf("Error: %v\n", err)
			if errors.Is(err, command.ErrRead) {
				return err
			}
			continue
		}

		next = resolveCommandSrc(next, resolver)

		if err := sink.Send(ctx, next); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			cmd.PrintErrf("Error: %v\n", err)
			return err
		}
	}
}

// resolveCommandSrc maps a library name to a concrete file path. A
// name the library cannot resolve passes through untouched: the
// engine's load failure then surfaces as a load event, the same as
// any other unreadable source.
func resolveCommandSrc(cmd *command.Command, resolver *library.Resolver) *command.Command {
	if cmd.Src == "" {
		return cmd
	}

	resolved, err := resolver.Resolve(cmd.Src)
	if err != nil {
		slog.Debug("library lookup missed, passing source through", "src", cmd.Src, "error", err)
		return cmd
	}
	if resolved == cmd.Src {
		return cmd
	}

	derived := *cmd
	derived.Src = resolved
	return &derived
}

// writeEventStream encodes every event from the subscription as one
// JSON line. It returns when the subscription terminates.
func writeEventStream(w io.Writer, sub *stream.Subscription[event.Event]) {
	encoder := json.NewEncoder(w)
	for ev := range sub.C {
		if err := encoder.Encode(ev); err != nil {
			slog.Error("event write failed", "error", err)
			return
		}
	}

	if err := sub.Err(); err != nil {
		slog.Debug("event stream terminated with error", "error", err)
	} else {
		slog.Debug("event stream completed")
	}
}
