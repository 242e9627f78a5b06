package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ErrRead marks a failure of the underlying stream, as opposed to a
// single rejected line. Callers can keep reading past rejected lines
// but not past a read failure.
var ErrRead = errors.New("command stream read failed")

// Reader reads newline-delimited JSON commands from a stream.
// Blank lines are skipped; a malformed line is returned as an error
// without consuming the rest of the stream.
type Reader struct {
	scanner *bufio.Scanner
	parser  *Parser
	line    int
}

// NewReader creates a command reader over r
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	slog.Debug("creating command reader")
	return &Reader{
		scanner: scanner,
		parser:  NewParser(),
	}
}

// Next returns the next command from the stream. It returns io.EOF
// when the underlying stream is exhausted.
func (r *Reader) Next() (*Command, error) {
	for r.scanner.Scan() {
		r.line++

		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			slog.Debug("skipping blank line", "line", r.line)
			continue
		}

		cmd, err := r.parser.Parse([]byte(text))
		if err != nil {
			slog.Error("command line rejected", "line", r.line, "error", err)
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}

		return cmd, nil
	}

	if err := r.scanner.Err(); err != nil {
		slog.Error("command stream read failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}

	slog.Debug("command stream exhausted", "lines_read", r.line)
	return nil, io.EOF
}
