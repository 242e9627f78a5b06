package command

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Action represents a validated playback action name
type Action int

const (
	ActionNone Action = iota

	// Handle actions (require a target id)
	ActionPlay
	ActionPause
	ActionStop
	ActionResume

	// Global actions (require no target id)
	ActionPauseAll
	ActionResumeAll
	ActionStopAll
	ActionMuteAll
	ActionUnmuteAll
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return ""
	case ActionPlay:
		return "play"
	case ActionPause:
		return "pause"
	case ActionStop:
		return "stop"
	case ActionResume:
		return "resume"
	case ActionPauseAll:
		return "pauseAll"
	case ActionResumeAll:
		return "resumeAll"
	case ActionStopAll:
		return "stopAll"
	case ActionMuteAll:
		return "muteAll"
	case ActionUnmuteAll:
		return "unmuteAll"
	default:
		slog.Warn("Action.String() received unknown action", "action", int(a))
		return "unknown"
	}
}

// Global reports whether the action targets the engine rather than a handle
func (a Action) Global() bool {
	switch a {
	case ActionPauseAll, ActionResumeAll, ActionStopAll, ActionMuteAll, ActionUnmuteAll:
		return true
	default:
		return false
	}
}

// ParseAction validates an action name at construction time. Unknown
// names are rejected here so downstream dispatch never sees one.
func ParseAction(s string) (Action, error) {
	switch s {
	case "":
		return ActionNone, nil
	case "play":
		return ActionPlay, nil
	case "pause":
		return ActionPause, nil
	case "stop":
		return ActionStop, nil
	case "resume":
		return ActionResume, nil
	case "pauseAll":
		return ActionPauseAll, nil
	case "resumeAll":
		return ActionResumeAll, nil
	case "stopAll":
		return ActionStopAll, nil
	case "muteAll":
		return ActionMuteAll, nil
	case "unmuteAll":
		return ActionUnmuteAll, nil
	default:
		return ActionNone, fmt.Errorf("unknown action: %q", s)
	}
}

// MarshalJSON encodes the action as its wire-format string
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes and validates a wire-format action string
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("action must be a string: %w", err)
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Command represents one playback instruction.
//
// Commands are immutable inputs: dispatch and isolation derive new
// values and never write through to the original. Numeric fields use
// the zero value as "absent": a zero position, relative offset,
// progress, or volume is not applied.
type Command struct {
	// Src creates a new sound when set and no ID is present
	Src string `json:"src,omitempty"`

	// ID targets an existing sound handle
	ID string `json:"id,omitempty"`

	// Action names a handle action, or a global action when ID is absent
	Action Action `json:"action,omitempty"`

	// Seek variants, applied in this order when present
	Position int64   `json:"position,omitempty"` // absolute, ms
	Relative int64   `json:"relative,omitempty"` // signed offset, ms
	Progress float64 `json:"progress,omitempty"` // fraction of duration, 0..1

	Volume int `json:"volume,omitempty"` // 0..100

	// Scope carries isolation labels; sinks append, sources filter
	Scope []string `json:"scope,omitempty"`
}

// WithScope returns a copy of the command with the given labels
// appended to its scope. The receiver is never mutated and never
// shares its scope slice with the result.
func (c *Command) WithScope(labels ...string) *Command {
	out := *c
	scope := make([]string, 0, len(c.Scope)+len(labels))
	scope = append(scope, c.Scope...)
	scope = append(scope, labels...)
	out.Scope = scope
	return &out
}

// Parser parses wire-format JSON into validated commands
type Parser struct{}

// NewParser creates a new command parser
func NewParser() *Parser {
	slog.Debug("creating new command parser")
	return &Parser{}
}

// Parse parses one JSON command. Action names are validated during
// decoding; structural rules (which field combinations are legal) are
// the dispatcher's business, not the parser's.
func (p *Parser) Parse(data []byte) (*Command, error) {
	if len(data) == 0 {
		err := fmt.Errorf("empty command data")
		slog.Error("parse failed: empty data", "error", err)
		return nil, err
	}

	slog.Debug("parsing command JSON", "size_bytes", len(data))

	var cmd Command
	err := json.Unmarshal(data, &cmd)
	if err != nil {
		slog.Error("failed to unmarshal command JSON", "error", err, "data_preview", string(data[:min(100, len(data))]))
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	if cmd.Progress < 0 || cmd.Progress > 1 {
		err := fmt.Errorf("progress out of range: %v", cmd.Progress)
		slog.Error("validation failed", "error", err)
		return nil, err
	}

	slog.Debug("command parsed",
		"src", cmd.Src,
		"id", cmd.ID,
		"action", cmd.Action.String(),
		"scope", cmd.Scope)

	return &cmd, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
