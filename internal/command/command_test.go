package command

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseActionKnownNames(t *testing.T) {
	tests := []struct {
		name     string
		expected Action
		global   bool
	}{
		{"", ActionNone, false},
		{"play", ActionPlay, false},
		{"pause", ActionPause, false},
		{"stop", ActionStop, false},
		{"resume", ActionResume, false},
		{"pauseAll", ActionPauseAll, true},
		{"resumeAll", ActionResumeAll, true},
		{"stopAll", ActionStopAll, true},
		{"muteAll", ActionMuteAll, true},
		{"unmuteAll", ActionUnmuteAll, true},
	}

	for _, test := range tests {
		action, err := ParseAction(test.name)
		if err != nil {
			t.Errorf("ParseAction(%q) returned error: %v", test.name, err)
			continue
		}
		if action != test.expected {
			t.Errorf("ParseAction(%q) = %v, want %v", test.name, action, test.expected)
		}
		if action.Global() != test.global {
			t.Errorf("%q Global() = %v, want %v", test.name, action.Global(), test.global)
		}
		if action.String() != test.name {
			t.Errorf("Action round trip failed: %q != %q", action.String(), test.name)
		}
	}
}

func TestParseActionUnknownName(t *testing.T) {
	for _, name := range []string{"explode", "PLAY", "pause-all", "destruct"} {
		if _, err := ParseAction(name); err == nil {
			t.Errorf("ParseAction(%q) expected error, got nil", name)
		}
	}
}

func TestParserValidCommands(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name  string
		input string
		check func(t *testing.T, cmd *Command)
	}{
		{
			name:  "creation",
			input: `{"src": "ding.wav", "scope": ["ui"]}`,
			check: func(t *testing.T, cmd *Command) {
				if cmd.Src != "ding.wav" {
					t.Errorf("src = %q, want ding.wav", cmd.Src)
				}
				if len(cmd.Scope) != 1 || cmd.Scope[0] != "ui" {
					t.Errorf("scope = %v, want [ui]", cmd.Scope)
				}
			},
		},
		{
			name:  "handle action",
			input: `{"id": "sound0", "action": "play"}`,
			check: func(t *testing.T, cmd *Command) {
				if cmd.ID != "sound0" {
					t.Errorf("id = %q, want sound0", cmd.ID)
				}
				if cmd.Action != ActionPlay {
					t.Errorf("action = %v, want play", cmd.Action)
				}
			},
		},
		{
			name:  "global action",
			input: `{"action": "pauseAll"}`,
			check: func(t *testing.T, cmd *Command) {
				if cmd.Action != ActionPauseAll {
					t.Errorf("action = %v, want pauseAll", cmd.Action)
				}
				if !cmd.Action.Global() {
					t.Error("pauseAll must be a global action")
				}
			},
		},
		{
			name:  "seek fields",
			input: `{"id": "sound1", "position": 2000, "relative": -500, "progress": 0.25, "volume": 60}`,
			check: func(t *testing.T, cmd *Command) {
				if cmd.Position != 2000 || cmd.Relative != -500 {
					t.Errorf("position/relative = %d/%d, want 2000/-500", cmd.Position, cmd.Relative)
				}
				if cmd.Progress != 0.25 {
					t.Errorf("progress = %v, want 0.25", cmd.Progress)
				}
				if cmd.Volume != 60 {
					t.Errorf("volume = %d, want 60", cmd.Volume)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cmd, err := parser.Parse([]byte(test.input))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			test.check(t, cmd)
		})
	}
}

func TestParserRejects(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name  string
		input string
	}{
		{"empty data", ""},
		{"malformed JSON", `{"src": `},
		{"unknown action", `{"id": "sound0", "action": "explode"}`},
		{"numeric action", `{"id": "sound0", "action": 3}`},
		{"progress above one", `{"id": "sound0", "progress": 1.5}`},
		{"negative progress", `{"id": "sound0", "progress": -0.2}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := parser.Parse([]byte(test.input)); err == nil {
				t.Errorf("Parse(%q) expected error, got nil", test.input)
			}
		})
	}
}

func TestWithScopeDerivesNewCommand(t *testing.T) {
	original := Command{Src: "a.mp3", Scope: []string{"root"}}

	derived := original.WithScope("child")

	if len(derived.Scope) != 2 || derived.Scope[0] != "root" || derived.Scope[1] != "child" {
		t.Errorf("derived scope = %v, want [root child]", derived.Scope)
	}
	if len(original.Scope) != 1 {
		t.Errorf("original scope mutated: %v", original.Scope)
	}

	// Appending to the derived scope must not spill into a sibling
	// derived from the same original.
	sibling := original.WithScope("other")
	if sibling.Scope[1] != "other" {
		t.Errorf("sibling scope = %v, want [root other]", sibling.Scope)
	}
	if derived.Scope[1] != "child" {
		t.Errorf("derived scope corrupted by sibling: %v", derived.Scope)
	}
}

func TestReaderStreamsCommands(t *testing.T) {
	input := strings.Join([]string{
		`{"src": "a.wav"}`,
		``,
		`   `,
		`{"id": "sound0", "action": "play"}`,
	}, "\n")

	reader := NewReader(strings.NewReader(input))

	first, err := reader.Next()
	if err != nil {
		t.Fatalf("first Next failed: %v", err)
	}
	if first.Src != "a.wav" {
		t.Errorf("first src = %q, want a.wav", first.Src)
	}

	second, err := reader.Next()
	if err != nil {
		t.Fatalf("second Next failed: %v", err)
	}
	if second.ID != "sound0" || second.Action != ActionPlay {
		t.Errorf("second = %+v, want id sound0 action play", second)
	}

	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReaderReportsLineNumber(t *testing.T) {
	reader := NewReader(strings.NewReader("{\"src\": \"ok.wav\"}\nnot json\n"))

	if _, err := reader.Next(); err != nil {
		t.Fatalf("first line should parse: %v", err)
	}

	_, err := reader.Next()
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name line 2, got: %v", err)
	}
	if errors.Is(err, ErrRead) {
		t.Error("a rejected line should not look like a stream read failure")
	}
}

type brokenReader struct{}

func (brokenReader) Read(p []byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}

func TestReaderFlagsStreamFailure(t *testing.T) {
	reader := NewReader(brokenReader{})

	_, err := reader.Next()
	if !errors.Is(err, ErrRead) {
		t.Fatalf("expected ErrRead for a broken stream, got %v", err)
	}
}
