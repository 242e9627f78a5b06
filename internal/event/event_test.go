package event

import (
	"encoding/json"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindLoad, "load"},
		{KindPlay, "play"},
		{KindPause, "pause"},
		{KindStop, "stop"},
		{KindPlaying, "playing"},
		{KindFinish, "finish"},
		{KindUpdate, "update"},
		{KindFailure, "failure"},
		{KindError, "error"},
		{Kind(99), "unknown"},
	}

	for _, test := range tests {
		if got := test.kind.String(); got != test.expected {
			t.Errorf("Kind(%d).String() = %q, want %q", int(test.kind), got, test.expected)
		}
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	kinds := []Kind{
		KindLoad, KindPlay, KindPause, KindStop,
		KindPlaying, KindFinish, KindUpdate, KindFailure, KindError,
	}

	for _, kind := range kinds {
		parsed, err := ParseKind(kind.String())
		if err != nil {
			t.Errorf("ParseKind(%q) returned error: %v", kind.String(), err)
			continue
		}
		if parsed != kind {
			t.Errorf("ParseKind(%q) = %v, want %v", kind.String(), parsed, kind)
		}
	}
}

func TestParseKindUnknown(t *testing.T) {
	_, err := ParseKind("explode")
	if err == nil {
		t.Error("expected error for unknown kind, got nil")
	}
}

func TestKindJSONEncoding(t *testing.T) {
	data, err := json.Marshal(KindPlaying)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"playing"` {
		t.Errorf("marshal = %s, want %q", data, `"playing"`)
	}

	var kind Kind
	if err := json.Unmarshal([]byte(`"finish"`), &kind); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if kind != KindFinish {
		t.Errorf("unmarshal = %v, want %v", kind, KindFinish)
	}

	if err := json.Unmarshal([]byte(`"warble"`), &kind); err == nil {
		t.Error("expected error for unknown kind string, got nil")
	}

	if err := json.Unmarshal([]byte(`42`), &kind); err == nil {
		t.Error("expected error for non-string kind, got nil")
	}
}

func TestEventWireFormat(t *testing.T) {
	evt := Event{
		Kind:     KindUpdate,
		ID:       "sound0",
		Src:      "ding.wav",
		Position: 1500,
		Duration: 3000,
		Volume:   80,
		Paused:   true,
		Scope:    []string{"ui", "settings"},
	}

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Kind != KindUpdate {
		t.Errorf("kind = %v, want %v", decoded.Kind, KindUpdate)
	}
	if decoded.ID != "sound0" {
		t.Errorf("id = %q, want %q", decoded.ID, "sound0")
	}
	if decoded.Position != 1500 || decoded.Duration != 3000 {
		t.Errorf("position/duration = %d/%d, want 1500/3000", decoded.Position, decoded.Duration)
	}
	if !decoded.Paused || decoded.Playing {
		t.Errorf("paused/playing = %v/%v, want true/false", decoded.Paused, decoded.Playing)
	}
	if len(decoded.Scope) != 2 || decoded.Scope[0] != "ui" || decoded.Scope[1] != "settings" {
		t.Errorf("scope = %v, want [ui settings]", decoded.Scope)
	}
}

func TestInScope(t *testing.T) {
	evt := Event{Scope: []string{"a", "b"}}

	if !evt.InScope("a") {
		t.Error("expected scope to contain a")
	}
	if !evt.InScope("b") {
		t.Error("expected scope to contain b")
	}
	if evt.InScope("c") {
		t.Error("did not expect scope to contain c")
	}

	empty := Event{}
	if empty.InScope("a") {
		t.Error("empty scope should contain nothing")
	}
}

func TestWithScopeCopies(t *testing.T) {
	scope := []string{"outer"}
	evt := Event{ID: "sound1"}

	tagged := evt.WithScope(scope)
	scope[0] = "mutated"

	if tagged.Scope[0] != "outer" {
		t.Errorf("scope aliased caller slice: got %q, want %q", tagged.Scope[0], "outer")
	}
	if evt.Scope != nil {
		t.Error("original event must not be mutated")
	}
}

func TestErrorEvent(t *testing.T) {
	evt := ErrorEvent("", "broken.mp3", []string{"game"}, "decode failed")

	if evt.Kind != KindError {
		t.Errorf("kind = %v, want %v", evt.Kind, KindError)
	}
	if !evt.Error {
		t.Error("error flag must be set")
	}
	if evt.ID != "" {
		t.Errorf("creation failure must carry empty id, got %q", evt.ID)
	}
	if evt.Src != "broken.mp3" {
		t.Errorf("src = %q, want %q", evt.Src, "broken.mp3")
	}
	if evt.Reason != "decode failed" {
		t.Errorf("reason = %q, want %q", evt.Reason, "decode failed")
	}
	if len(evt.Scope) != 1 || evt.Scope[0] != "game" {
		t.Errorf("scope = %v, want [game]", evt.Scope)
	}
}
