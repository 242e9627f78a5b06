// Package enginetest provides a scripted in-memory engine for testing
// code that drives the engine interface. Loads settle synchronously
// unless manual mode is on, and progress/finish/failure callbacks fire
// only when the test asks for them, so event order is deterministic.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"soundbridge.dev/internal/engine"
)

// Engine is a scripted engine.Engine implementation
type Engine struct {
	// FailCreate, when set, makes CreateSound return this error.
	FailCreate error

	// FailSrcs maps source paths whose loads settle as failed.
	FailSrcs map[string]error

	// Durations maps source paths to clip durations in milliseconds.
	// Sources not listed get DefaultDuration.
	Durations map[string]int64

	// Manual defers load settling until SettleLoad or FailLoad is
	// called, for exercising behavior while a load is in flight.
	Manual bool

	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	handles map[string]*Sound
	order   []*Sound
	nextID  int
	muted   bool
	closed  bool
	calls   []string
}

// DefaultDuration is the clip duration for sources without an entry
// in Durations.
const DefaultDuration int64 = 1000

var _ engine.Engine = (*Engine)(nil)

// New creates a fake engine that reports ready immediately
func New() *Engine {
	e := NewUnready()
	e.MarkReady()
	return e
}

// NewUnready creates a fake engine whose Ready channel stays open
// until MarkReady is called
func NewUnready() *Engine {
	return &Engine{
		FailSrcs:  make(map[string]error),
		Durations: make(map[string]int64),
		ready:     make(chan struct{}),
		handles:   make(map[string]*Sound),
	}
}

// MarkReady closes the Ready channel
func (e *Engine) MarkReady() {
	e.readyOnce.Do(func() { close(e.ready) })
}

// Ready reports engine readiness
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// CreateSound allocates a scripted sound. Unless Manual is set, the
// load settles before CreateSound returns.
func (e *Engine) CreateSound(ctx context.Context, src string, cb engine.Callbacks) (engine.Handle, error) {
	if e.FailCreate != nil {
		return nil, e.FailCreate
	}
	if src == "" {
		return nil, fmt.Errorf("source path is empty")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, engine.ErrEngineClosed
	}

	id := fmt.Sprintf("sound%d", e.nextID)
	e.nextID++

	duration, ok := e.Durations[src]
	if !ok {
		duration = DefaultDuration
	}

	s := &Sound{
		eng:        e,
		id:         id,
		src:        src,
		cb:         cb,
		readyState: engine.ReadyLoading,
		volume:     100,
		muted:      e.muted,
		duration:   duration,
	}
	e.handles[id] = s
	e.order = append(e.order, s)
	e.record("create " + src)
	failErr := e.FailSrcs[src]
	manual := e.Manual
	e.mu.Unlock()

	if !manual {
		if failErr != nil {
			s.settleLoad(false)
		} else {
			s.settleLoad(true)
		}
	}

	return s, nil
}

// Sound returns the scripted sound with the given id
func (e *Engine) Sound(id string) (*Sound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.handles[id]
	return s, ok
}

// SoundCount reports how many sounds the engine currently tracks
func (e *Engine) SoundCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handles)
}

// Calls returns the recorded engine operations in order
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *Engine) record(call string) {
	e.calls = append(e.calls, call)
}

// SettleLoad completes a pending manual load successfully
func (e *Engine) SettleLoad(id string) {
	if s, ok := e.Sound(id); ok {
		s.settleLoad(true)
	}
}

// FailLoad completes a pending manual load as failed
func (e *Engine) FailLoad(id string) {
	if s, ok := e.Sound(id); ok {
		s.settleLoad(false)
	}
}

// EmitPlaying fires one progress callback for an active sound
func (e *Engine) EmitPlaying(id string, positionMillis int64) {
	s, ok := e.Sound(id)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.playState != engine.PlayActive || s.paused {
		s.mu.Unlock()
		return
	}
	s.position = positionMillis
	st := s.statusLocked()
	s.mu.Unlock()

	if s.cb.WhilePlaying != nil {
		s.cb.WhilePlaying(st)
	}
}

// Finish completes an active sound as if it reached its end
func (e *Engine) Finish(id string) {
	s, ok := e.Sound(id)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.playState != engine.PlayActive {
		s.mu.Unlock()
		return
	}
	s.playState = engine.PlayStopped
	s.paused = false
	s.position = 0
	st := s.statusLocked()
	st.Position = s.duration
	s.mu.Unlock()

	if s.cb.OnFinish != nil {
		s.cb.OnFinish(st)
	}
}

// EmitFailure reports a runtime playback failure for a sound
func (e *Engine) EmitFailure(id string, cause error) {
	s, ok := e.Sound(id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.playState = engine.PlayStopped
	s.paused = false
	st := s.statusLocked()
	s.mu.Unlock()

	if s.cb.OnFailure != nil {
		s.cb.OnFailure(st, cause)
	}
}

// PauseAll pauses every active sound in creation order
func (e *Engine) PauseAll() error {
	e.mu.Lock()
	e.record("pauseAll")
	sounds := append([]*Sound(nil), e.order...)
	e.mu.Unlock()
	for _, s := range sounds {
		if err := s.Pause(); err != nil {
			return err
		}
	}
	return nil
}

// ResumeAll resumes every paused sound in creation order
func (e *Engine) ResumeAll() error {
	e.mu.Lock()
	e.record("resumeAll")
	sounds := append([]*Sound(nil), e.order...)
	e.mu.Unlock()
	for _, s := range sounds {
		if err := s.Resume(); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every active sound in creation order
func (e *Engine) StopAll() error {
	e.mu.Lock()
	e.record("stopAll")
	sounds := append([]*Sound(nil), e.order...)
	e.mu.Unlock()
	for _, s := range sounds {
		if err := s.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// MuteAll silences output without firing callbacks
func (e *Engine) MuteAll() error {
	e.setMuted(true, "muteAll")
	return nil
}

// UnmuteAll restores output without firing callbacks
func (e *Engine) UnmuteAll() error {
	e.setMuted(false, "unmuteAll")
	return nil
}

func (e *Engine) setMuted(muted bool, call string) {
	e.mu.Lock()
	e.muted = muted
	e.record(call)
	sounds := append([]*Sound(nil), e.order...)
	e.mu.Unlock()
	for _, s := range sounds {
		s.mu.Lock()
		s.muted = muted
		s.mu.Unlock()
	}
}

// Reboot discards every sound without firing callbacks
func (e *Engine) Reboot() error {
	e.mu.Lock()
	e.record("reboot")
	sounds := e.order
	e.handles = make(map[string]*Sound)
	e.order = nil
	e.mu.Unlock()
	for _, s := range sounds {
		s.mu.Lock()
		s.discarded = true
		s.playState = engine.PlayStopped
		s.mu.Unlock()
	}
	return nil
}

// Close rejects further sound creation and discards existing sounds
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.record("close")
	e.mu.Unlock()
	return e.Reboot()
}

// Sound is a scripted engine.Handle
type Sound struct {
	eng *Engine
	id  string
	src string
	cb  engine.Callbacks

	mu         sync.Mutex
	readyState engine.ReadyState
	playState  engine.PlayState
	paused     bool
	muted      bool
	volume     int
	duration   int64
	position   int64
	pending    bool
	discarded  bool
}

var _ engine.Handle = (*Sound)(nil)

func (s *Sound) ID() string  { return s.id }
func (s *Sound) Src() string { return s.src }

// Status returns a snapshot of the sound's current state
func (s *Sound) Status() engine.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Sound) statusLocked() engine.Status {
	return engine.Status{
		ID:         s.id,
		Src:        s.src,
		Position:   s.position,
		Duration:   s.duration,
		Volume:     s.volume,
		Muted:      s.muted,
		Paused:     s.paused,
		PlayState:  s.playState,
		ReadyState: s.readyState,
	}
}

func (s *Sound) settleLoad(ok bool) {
	s.mu.Lock()
	if s.discarded || s.readyState != engine.ReadyLoading {
		s.mu.Unlock()
		return
	}
	if ok {
		s.readyState = engine.ReadyLoaded
	} else {
		s.readyState = engine.ReadyFailed
		s.duration = 0
	}
	pending := s.pending
	s.pending = false
	st := s.statusLocked()
	s.mu.Unlock()

	if s.cb.OnLoad != nil {
		s.cb.OnLoad(st)
	}
	if ok && pending {
		_ = s.Play()
	}
}

// Play starts playback, resumes a paused sound, or queues a pending
// start while a manual load is unsettled
func (s *Sound) Play() error {
	<-s.eng.ready

	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return engine.ErrEngineClosed
	}

	switch s.readyState {
	case engine.ReadyLoading, engine.ReadyNone:
		s.pending = true
		s.mu.Unlock()
		return nil
	case engine.ReadyFailed:
		s.mu.Unlock()
		return engine.ErrSoundNotLoaded
	}

	if s.playState == engine.PlayActive && !s.paused {
		s.mu.Unlock()
		return nil
	}

	resumed := s.playState == engine.PlayActive && s.paused
	s.playState = engine.PlayActive
	s.paused = false
	st := s.statusLocked()
	s.mu.Unlock()

	if resumed {
		if s.cb.OnResume != nil {
			s.cb.OnResume(st)
		}
	} else if s.cb.OnPlay != nil {
		s.cb.OnPlay(st)
	}
	return nil
}

// Pause halts an active sound
func (s *Sound) Pause() error {
	s.mu.Lock()
	if s.playState != engine.PlayActive || s.paused {
		s.mu.Unlock()
		return nil
	}
	s.paused = true
	st := s.statusLocked()
	s.mu.Unlock()

	if s.cb.OnPause != nil {
		s.cb.OnPause(st)
	}
	return nil
}

// Resume continues a paused sound
func (s *Sound) Resume() error {
	s.mu.Lock()
	if s.playState != engine.PlayActive || !s.paused {
		s.mu.Unlock()
		return nil
	}
	s.paused = false
	st := s.statusLocked()
	s.mu.Unlock()

	if s.cb.OnResume != nil {
		s.cb.OnResume(st)
	}
	return nil
}

// Stop ends playback and rewinds to the start
func (s *Sound) Stop() error {
	s.mu.Lock()
	if s.playState != engine.PlayActive {
		s.mu.Unlock()
		return nil
	}
	s.playState = engine.PlayStopped
	s.paused = false
	s.position = 0
	st := s.statusLocked()
	s.mu.Unlock()

	if s.cb.OnStop != nil {
		s.cb.OnStop(st)
	}
	return nil
}

// SetPosition seeks to an absolute position in milliseconds
func (s *Sound) SetPosition(ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms < 0 {
		ms = 0
	}
	if s.duration > 0 && ms > s.duration {
		ms = s.duration
	}
	s.position = ms
	return nil
}

// SetVolume sets the configured volume, clamped to 0..100
func (s *Sound) SetVolume(volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.volume = volume
	return nil
}
