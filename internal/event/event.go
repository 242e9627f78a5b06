package event

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Kind represents the type of playback event for stream consumers
type Kind int

const (
	KindLoad Kind = iota
	KindPlay
	KindPause
	KindStop
	KindPlaying
	KindFinish
	KindUpdate
	KindFailure
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindPlay:
		return "play"
	case KindPause:
		return "pause"
	case KindStop:
		return "stop"
	case KindPlaying:
		return "playing"
	case KindFinish:
		return "finish"
	case KindUpdate:
		return "update"
	case KindFailure:
		return "failure"
	case KindError:
		return "error"
	default:
		slog.Warn("Kind.String() received unknown kind", "kind", int(k))
		return "unknown"
	}
}

// ParseKind converts a wire-format kind string back to a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "load":
		return KindLoad, nil
	case "play":
		return KindPlay, nil
	case "pause":
		return KindPause, nil
	case "stop":
		return KindStop, nil
	case "playing":
		return KindPlaying, nil
	case "finish":
		return KindFinish, nil
	case "update":
		return KindUpdate, nil
	case "failure":
		return KindFailure, nil
	case "error":
		return KindError, nil
	default:
		return 0, fmt.Errorf("unknown event kind: %q", s)
	}
}

// MarshalJSON encodes the kind as its wire-format string
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a wire-format kind string
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("event kind must be a string: %w", err)
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event represents one observable playback state change.
//
// Every field reflects the sound's state at emission time; nothing is
// carried over from earlier events. Playing is derived, never stored:
// it is true only while the sound is actively progressing (not paused,
// play-state active). Volume reports 0 whenever the sound is muted,
// regardless of the last explicit volume.
type Event struct {
	Kind     Kind     `json:"kind"`
	ID       string   `json:"id"`
	Src      string   `json:"src,omitempty"`
	Position int64    `json:"position"`
	Duration int64    `json:"duration"`
	Volume   int      `json:"volume"`
	Paused   bool     `json:"paused"`
	Playing  bool     `json:"playing"`
	Error    bool     `json:"error,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Scope    []string `json:"scope,omitempty"`
}

// InScope reports whether the event carries the given isolation label
func (e Event) InScope(label string) bool {
	for _, s := range e.Scope {
		if s == label {
			return true
		}
	}
	return false
}

// WithScope returns a copy of the event carrying the given scope.
// The original event is never mutated; the scope slice is copied so
// later appends cannot alias it.
func (e Event) WithScope(scope []string) Event {
	e.Scope = append([]string(nil), scope...)
	return e
}

// ErrorEvent builds the error variant emitted for load and creation
// failures. The identifier is empty when the sound never came into
// existence, so consumers must not treat it as a registry key.
func ErrorEvent(id, src string, scope []string, reason string) Event {
	slog.Debug("building error event",
		"sound_id", id,
		"src", src,
		"reason", reason)

	return Event{
		Kind:   KindError,
		ID:     id,
		Src:    src,
		Error:  true,
		Reason: reason,
		Scope:  append([]string(nil), scope...),
	}
}
