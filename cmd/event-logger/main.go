// Command event-logger captures a soundbridge event stream for
// inspection. Pipe soundbridge's stdout into it during development:
//
//	soundbridge < commands.ndjson | event-logger
//
// Every line is archived to a timestamped file and pretty-printed to
// stderr as it arrives.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"soundbridge.dev/internal/event"
)

func main() {
	// Initialize structured logging
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	slog.Info("event logger started", "args", os.Args)

	archive, archivePath, err := openArchive()
	if err != nil {
		slog.Error("failed to open archive file", "error", err)
		os.Exit(1)
	}
	defer archive.Close()

	slog.Info("archiving event stream", "file", archivePath)

	counts := make(map[string]int)
	lineNum := 0
	invalid := 0

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		lineNum++

		// Archive the raw line whether or not it parses; a malformed
		// line is exactly what this tool exists to catch
		fmt.Fprintf(archive, "%s\n", line)

		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			invalid++
			slog.Error("line is not a valid event", "line", lineNum, "error", err, "raw", string(line))
			continue
		}

		counts[ev.Kind.String()]++

		pretty, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			slog.Error("failed to pretty print event", "line", lineNum, "error", err)
			continue
		}
		fmt.Fprintf(os.Stderr, "\n=== EVENT %d: %s ===\n%s\n\n", lineNum, ev.Kind.String(), pretty)
	}

	if err := scanner.Err(); err != nil {
		slog.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}

	slog.Info("event stream ended",
		"lines", lineNum,
		"invalid", invalid,
		"kinds", counts,
		"archive", archivePath)

	if invalid > 0 {
		os.Exit(1)
	}
}

// openArchive creates a timestamped capture file in the logs directory
func openArchive() (*os.File, string, error) {
	logsDir := "/tmp/soundbridge-event-logs"
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05.000")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_events.ndjson", timestamp))

	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create archive file: %w", err)
	}
	return f, path, nil
}
