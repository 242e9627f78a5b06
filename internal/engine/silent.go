package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"soundbridge.dev/internal/codec"
)

// SilentEngine plays nothing while running the full sound lifecycle:
// sounds load (decode runs, so bad files still fail), positions
// advance in real time, and every callback fires on schedule. It backs
// silent mode and any environment without an audio device.
type SilentEngine struct {
	opts     Options
	fsys     afero.Fs
	registry *codec.Registry
	ready    chan struct{}

	mu      sync.Mutex
	handles map[string]*silentSound
	order   []*silentSound
	nextID  int64
	muted   bool
	closed  bool
}

var _ Engine = (*SilentEngine)(nil)

// NewSilentEngine creates a silent engine. It is ready immediately.
func NewSilentEngine(opts Options, fsys afero.Fs) *SilentEngine {
	slog.Debug("creating silent engine")

	ready := make(chan struct{})
	close(ready)

	return &SilentEngine{
		opts:     opts.withDefaults(),
		fsys:     fsys,
		registry: codec.NewDefaultRegistry(),
		ready:    ready,
		handles:  make(map[string]*silentSound),
	}
}

// Ready reports readiness; silent engines need no device warm-up
func (e *SilentEngine) Ready() <-chan struct{} {
	return e.ready
}

// CreateSound allocates a handle and starts decoding src in the
// background. The decode still runs so that unreadable or corrupt
// files surface the same load failures an audible engine would report.
func (e *SilentEngine) CreateSound(ctx context.Context, src string, cb Callbacks) (Handle, error) {
	if src == "" {
		err := fmt.Errorf("source path is empty")
		slog.Error("create sound failed", "error", err)
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		slog.Error("create sound failed: engine closed", "src", src)
		return nil, ErrEngineClosed
	}

	id := fmt.Sprintf("sound%d", e.nextID)
	e.nextID++

	sound := &silentSound{
		eng:        e,
		id:         id,
		src:        src,
		cb:         cb,
		readyState: ReadyLoading,
		volume:     e.opts.Volume,
		muted:      e.muted,
		tick:       e.opts.TickInterval,
	}
	e.handles[id] = sound
	e.order = append(e.order, sound)
	e.mu.Unlock()

	slog.Debug("sound created", "sound_id", id, "src", src)

	go sound.load(ctx)

	return sound, nil
}

// PauseAll pauses every active sound in creation order
func (e *SilentEngine) PauseAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Pause(); err != nil {
			return err
		}
	}
	return nil
}

// ResumeAll resumes every paused sound in creation order
func (e *SilentEngine) ResumeAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Resume(); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every active sound in creation order
func (e *SilentEngine) StopAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// MuteAll forces every sound's effective volume to zero. No lifecycle
// callbacks fire; the muted state shows up in later snapshots.
func (e *SilentEngine) MuteAll() error {
	e.setMuted(true)
	return nil
}

// UnmuteAll restores every sound's configured volume
func (e *SilentEngine) UnmuteAll() error {
	e.setMuted(false)
	return nil
}

func (e *SilentEngine) setMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	sounds := append([]*silentSound(nil), e.order...)
	e.mu.Unlock()

	for _, sound := range sounds {
		sound.setMuted(muted)
	}

	slog.Debug("engine mute state changed", "muted", muted, "sounds", len(sounds))
}

// Reboot discards every handle without firing callbacks and returns
// the engine to its post-construction state.
func (e *SilentEngine) Reboot() error {
	e.mu.Lock()
	sounds := e.order
	e.handles = make(map[string]*silentSound)
	e.order = nil
	e.mu.Unlock()

	for _, sound := range sounds {
		sound.discard()
	}

	slog.Debug("silent engine rebooted", "sounds_discarded", len(sounds))
	return nil
}

// Close reboots the engine and rejects further sound creation
func (e *SilentEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.Reboot()
}

func (e *SilentEngine) snapshot() []*silentSound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*silentSound(nil), e.order...)
}

// silentSound tracks one sound's state with wall-clock positions
type silentSound struct {
	eng  *SilentEngine
	id   string
	src  string
	cb   Callbacks
	tick time.Duration

	mu         sync.Mutex
	readyState ReadyState
	playState  PlayState
	paused     bool
	muted      bool
	volume     int
	duration   int64
	base       int64     // position at the last transition, ms
	started    time.Time // set while audibly progressing
	pending    bool      // play requested before the load settled
	discarded  bool
	gen        int // invalidates stale ticker goroutines
}

var _ Handle = (*silentSound)(nil)

func (s *silentSound) ID() string  { return s.id }
func (s *silentSound) Src() string { return s.src }

// Status returns a snapshot of the sound's current state
func (s *silentSound) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *silentSound) statusLocked() Status {
	return Status{
		ID:         s.id,
		Src:        s.src,
		Position:   s.positionLocked(),
		Duration:   s.duration,
		Volume:     s.volume,
		Muted:      s.muted,
		Paused:     s.paused,
		PlayState:  s.playState,
		ReadyState: s.readyState,
	}
}

func (s *silentSound) positionLocked() int64 {
	pos := s.base
	if !s.started.IsZero() {
		pos += time.Since(s.started).Milliseconds()
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// load decodes the source and settles the ready state exactly once
func (s *silentSound) load(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		s.failLoad(err)
		return
	}

	file, err := s.eng.fsys.Open(s.src)
	if err != nil {
		s.failLoad(err)
		return
	}
	defer file.Close()

	clip, err := s.eng.registry.Decode(s.src, file)
	if err != nil {
		s.failLoad(err)
		return
	}

	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return
	}
	s.readyState = ReadyLoaded
	s.duration = clip.DurationMillis()
	pending := s.pending
	s.pending = false
	st := s.statusLocked()
	s.mu.Unlock()

	slog.Debug("sound loaded", "sound_id", s.id, "duration_ms", st.Duration)

	if s.cb.OnLoad != nil {
		s.cb.OnLoad(st)
	}
	if pending {
		if err := s.Play(); err != nil {
			slog.Error("pending play failed after load", "sound_id", s.id, "error", err)
		}
	}
}

func (s *silentSound) failLoad(cause error) {
	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return
	}
	s.readyState = ReadyFailed
	s.pending = false
	st := s.statusLocked()
	s.mu.Unlock()

	slog.Error("sound load failed", "sound_id", s.id, "src", s.src, "error", cause)

	if s.cb.OnLoad != nil {
		s.cb.OnLoad(st)
	}
}

// Play starts playback, resumes a paused sound, or queues a pending
// start while the load is still settling.
func (s *silentSound) Play() error {
	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return ErrEngineClosed
	}

	switch s.readyState {
	case ReadyLoading, ReadyNone:
		s.pending = true
		s.mu.Unlock()
		slog.Debug("play queued until load settles", "sound_id", s.id)
		return nil
	case ReadyFailed:
		s.mu.Unlock()
		return ErrSoundNotLoaded
	}

	if s.playState == PlayActive && !s.paused {
		s.mu.Unlock()
		return nil
	}

	resumed := s.playState == PlayActive && s.paused
	s.playState = PlayActive
	s.paused = false
	s.started = time.Now()
	s.gen++
	gen := s.gen
	st := s.statusLocked()
	s.mu.Unlock()

	if resumed {
		slog.Debug("sound resumed", "sound_id", s.id, "position_ms", st.Position)
		if s.cb.OnResume != nil {
			s.cb.OnResume(st)
		}
	} else {
		slog.Debug("sound playing", "sound_id", s.id)
		if s.cb.OnPlay != nil {
			s.cb.OnPlay(st)
		}
	}

	go s.run(gen)
	return nil
}

// Pause halts progress while keeping the sound active
func (s *silentSound) Pause() error {
	s.mu.Lock()
	if s.playState != PlayActive || s.paused {
		s.mu.Unlock()
		return nil
	}

	s.base = s.positionLocked()
	s.started = time.Time{}
	s.paused = true
	s.gen++
	st := s.statusLocked()
	s.mu.Unlock()

	slog.Debug("sound paused", "sound_id", s.id, "position_ms", st.Position)

	if s.cb.OnPause != nil {
		s.cb.OnPause(st)
	}
	return nil
}

// Resume continues a paused sound
func (s *silentSound) Resume() error {
	s.mu.Lock()
	if s.playState != PlayActive || !s.paused {
		s.mu.Unlock()
		return nil
	}

	s.paused = false
	s.started = time.Now()
	s.gen++
	gen := s.gen
	st := s.statusLocked()
	s.mu.Unlock()

	slog.Debug("sound resumed", "sound_id", s.id, "position_ms", st.Position)

	if s.cb.OnResume != nil {
		s.cb.OnResume(st)
	}

	go s.run(gen)
	return nil
}

// Stop ends playback and rewinds to the start
func (s *silentSound) Stop() error {
	s.mu.Lock()
	if s.playState != PlayActive {
		s.mu.Unlock()
		return nil
	}

	s.playState = PlayStopped
	s.paused = false
	s.base = 0
	s.started = time.Time{}
	s.gen++
	st := s.statusLocked()
	s.mu.Unlock()

	slog.Debug("sound stopped", "sound_id", s.id)

	if s.cb.OnStop != nil {
		s.cb.OnStop(st)
	}
	return nil
}

// SetPosition seeks to an absolute position in milliseconds
func (s *silentSound) SetPosition(ms int64) error {
	s.mu.Lock()
	if ms < 0 {
		ms = 0
	}
	if s.duration > 0 && ms > s.duration {
		ms = s.duration
	}
	s.base = ms
	if !s.started.IsZero() {
		s.started = time.Now()
	}
	s.mu.Unlock()

	slog.Debug("sound position set", "sound_id", s.id, "position_ms", ms)
	return nil
}

// SetVolume sets the configured volume, clamped to 0..100
func (s *silentSound) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()

	slog.Debug("sound volume set", "sound_id", s.id, "volume", volume)
	return nil
}

func (s *silentSound) setMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// discard invalidates the sound without firing callbacks
func (s *silentSound) discard() {
	s.mu.Lock()
	s.discarded = true
	s.playState = PlayStopped
	s.paused = false
	s.started = time.Time{}
	s.gen++
	s.mu.Unlock()
}

// run drives progress ticks until the sound pauses, stops, finishes,
// or a newer generation takes over.
func (s *silentSound) run(gen int) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if s.gen != gen || s.discarded || s.playState != PlayActive || s.paused {
			s.mu.Unlock()
			return
		}

		if pos := s.positionLocked(); s.duration > 0 && pos >= s.duration {
			s.playState = PlayStopped
			s.paused = false
			s.base = 0
			s.started = time.Time{}
			s.gen++
			st := s.statusLocked()
			st.Position = s.duration
			s.mu.Unlock()

			slog.Debug("sound finished", "sound_id", s.id)

			if s.cb.OnFinish != nil {
				s.cb.OnFinish(st)
			}
			return
		}

		st := s.statusLocked()
		s.mu.Unlock()

		if s.cb.WhilePlaying != nil {
			s.cb.WhilePlaying(st)
		}
	}
}
