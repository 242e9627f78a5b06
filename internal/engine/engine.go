// Package engine defines the playback engine contract the bridge
// drives: sounds are created from source paths, observed through
// lifecycle callbacks, and controlled through handle methods. The
// package ships three implementations behind one factory: oto (pure
// Go, the default fallback), malgo (cgo) and silent (no device).
package engine

import (
	"context"
	"errors"
	"time"
)

// Common errors for Engine implementations
var (
	ErrEngineNotAvailable = errors.New("audio engine not available")
	ErrEngineClosed       = errors.New("audio engine is closed")
	ErrSoundNotLoaded     = errors.New("sound is not loaded")
)

// ReadyState describes how far a sound has come through loading
type ReadyState int

const (
	ReadyNone    ReadyState = 0 // created, load not started
	ReadyLoading ReadyState = 1 // decode in progress
	ReadyFailed  ReadyState = 2 // decode failed
	ReadyLoaded  ReadyState = 3 // decoded, playable
)

func (s ReadyState) String() string {
	switch s {
	case ReadyNone:
		return "uninitialized"
	case ReadyLoading:
		return "loading"
	case ReadyFailed:
		return "failed"
	case ReadyLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// PlayState describes whether a sound is idle or active. Paused sounds
// stay active; only stop and finish return a sound to idle.
type PlayState int

const (
	PlayStopped PlayState = 0
	PlayActive  PlayState = 1
)

func (s PlayState) String() string {
	switch s {
	case PlayStopped:
		return "stopped"
	case PlayActive:
		return "active"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of a sound's observable state.
// Volume reports the configured level even while muted; consumers that
// need the effective output level must combine Volume with Muted.
type Status struct {
	ID         string
	Src        string
	Position   int64 // ms
	Duration   int64 // ms, 0 until loaded
	Volume     int   // 0..100
	Muted      bool
	Paused     bool
	PlayState  PlayState
	ReadyState ReadyState
}

// Callbacks carries the lifecycle hooks registered once per sound at
// creation. Any field may be nil. Engines invoke them from their own
// goroutines with a snapshot taken after the transition settled, and
// never while holding handle locks, so a callback may call back into
// the engine.
type Callbacks struct {
	// OnLoad fires exactly once when the load settles, with
	// ReadyState either ReadyLoaded or ReadyFailed.
	OnLoad func(Status)

	OnPlay   func(Status)
	OnResume func(Status)
	OnPause  func(Status)
	OnStop   func(Status)

	// OnFinish fires when playback reaches the end of the sound.
	OnFinish func(Status)

	// WhilePlaying fires on every progress tick while the sound is
	// audibly playing. Engines never throttle it beyond the
	// configured tick interval.
	WhilePlaying func(Status)

	// OnFailure fires on a runtime playback failure (device loss,
	// output underrun). Load failures go through OnLoad instead.
	OnFailure func(Status, error)
}

// Handle is the engine-owned reference to one created sound.
//
// Play on a paused sound resumes it; play on an already-active sound
// is a no-op. Pause, resume and stop are likewise no-ops outside the
// states they apply to. Methods called before the load settles queue
// a single pending intent that is applied when loading completes.
type Handle interface {
	ID() string
	Src() string
	Status() Status

	Play() error
	Pause() error
	Resume() error
	Stop() error
	SetPosition(ms int64) error
	SetVolume(volume int) error
}

// Engine is a playback engine instance.
//
// Ready returns a channel that closes once the engine can accept
// work; CreateSound may be called before that, but playback begins
// only after readiness. Identifiers are engine-assigned and unique
// for the life of the engine ("sound0", "sound1", ...).
type Engine interface {
	Ready() <-chan struct{}

	// CreateSound allocates a handle for src and starts its load.
	// The callbacks are registered once and fire for the life of
	// the handle. An error means no handle exists.
	CreateSound(ctx context.Context, src string, cb Callbacks) (Handle, error)

	// Global actions applied to every sound at once
	PauseAll() error
	ResumeAll() error
	StopAll() error
	MuteAll() error
	UnmuteAll() error

	// Reboot stops everything and discards all handles, returning
	// the engine to its post-construction state.
	Reboot() error

	Close() error
}

// Default option values
const (
	DefaultSampleRate   = 44100
	DefaultChannels     = 2
	DefaultTickInterval = 50 * time.Millisecond
	DefaultVolume       = 100
)

// Options configures an engine at construction. Volume is the initial
// volume for new sounds; zero means unset, consistent with the command
// schema where zero-valued fields are absent. Raw carries
// engine-specific setup keys passed through verbatim; engines read the
// keys they understand and silently ignore the rest.
type Options struct {
	SampleRate   int
	Channels     int
	TickInterval time.Duration
	Volume       int
	Raw          map[string]any
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.Channels <= 0 {
		o.Channels = DefaultChannels
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Volume <= 0 || o.Volume > 100 {
		o.Volume = DefaultVolume
	}
	return o
}

// rawInt reads an integer setup key from o.Raw, tolerating the
// float64 values JSON decoding produces.
func (o Options) rawInt(key string, fallback int) int {
	v, ok := o.Raw[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// rawBool reads a boolean setup key from o.Raw.
func (o Options) rawBool(key string, fallback bool) bool {
	v, ok := o.Raw[key]
	if !ok {
		return fallback
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return fallback
}
