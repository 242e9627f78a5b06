//go:build cgo || windows || darwin || js

package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/spf13/afero"

	"soundbridge.dev/internal/codec"
)

// OtoEngine plays sounds through ebitengine/oto: one shared output
// context, one oto player per sound. Pure Go, works without cgo.
//
// The context is rate-fixed at construction, so every clip is
// normalized to the engine's sample rate and channel count at load.
type OtoEngine struct {
	opts     Options
	fsys     afero.Fs
	registry *codec.Registry
	ctx      *oto.Context
	ready    chan struct{}

	mu      sync.Mutex
	handles map[string]*otoSound
	order   []*otoSound
	nextID  int64
	muted   bool
	closed  bool
}

var _ Engine = (*OtoEngine)(nil)

// NewOtoEngine creates an oto-backed engine. The returned engine is
// usable immediately but playback starts only once Ready reports the
// output context warmed up.
//
// Raw option keys: "buffer_size_ms" (int) sets the context buffer.
func NewOtoEngine(opts Options, fsys afero.Fs) (*OtoEngine, error) {
	opts = opts.withDefaults()

	op := &oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: opts.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	if ms := opts.rawInt("buffer_size_ms", 0); ms > 0 {
		op.BufferSize = time.Duration(ms) * time.Millisecond
	}

	slog.Debug("creating oto engine",
		"sample_rate", op.SampleRate,
		"channels", op.ChannelCount,
		"buffer_ms", op.BufferSize.Milliseconds())

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		slog.Error("failed to create oto context", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEngineNotAvailable, err)
	}

	ready := make(chan struct{})
	go func() {
		<-readyChan
		close(ready)
		slog.Debug("oto context ready")
	}()

	return &OtoEngine{
		opts:     opts,
		fsys:     fsys,
		registry: codec.NewDefaultRegistry(),
		ctx:      otoCtx,
		ready:    ready,
		handles:  make(map[string]*otoSound),
	}, nil
}

// Ready reports when the output context has warmed up
func (e *OtoEngine) Ready() <-chan struct{} {
	return e.ready
}

// CreateSound allocates a handle and starts decoding src in the
// background. The handle is controllable immediately; a play issued
// before the load settles begins once loading completes.
func (e *OtoEngine) CreateSound(ctx context.Context, src string, cb Callbacks) (Handle, error) {
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

	sound := &otoSound{
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
func (e *OtoEngine) PauseAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Pause(); err != nil {
			return err
		}
	}
	return nil
}

// ResumeAll resumes every paused sound in creation order
func (e *OtoEngine) ResumeAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Resume(); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every active sound in creation order
func (e *OtoEngine) StopAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// MuteAll drops every sound's output gain to zero without touching
// configured volumes. No lifecycle callbacks fire.
func (e *OtoEngine) MuteAll() error {
	e.setMuted(true)
	return nil
}

// UnmuteAll restores every sound's configured output gain
func (e *OtoEngine) UnmuteAll() error {
	e.setMuted(false)
	return nil
}

func (e *OtoEngine) setMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	sounds := append([]*otoSound(nil), e.order...)
	e.mu.Unlock()

	for _, sound := range sounds {
		sound.setMuted(muted)
	}

	slog.Debug("engine mute state changed", "muted", muted, "sounds", len(sounds))
}

// Reboot releases every player without firing callbacks and returns
// the engine to its post-construction state. The output context stays
// alive for reuse.
func (e *OtoEngine) Reboot() error {
	e.mu.Lock()
	sounds := e.order
	e.handles = make(map[string]*otoSound)
	e.order = nil
	e.mu.Unlock()

	for _, sound := range sounds {
		sound.discard()
	}

	slog.Debug("oto engine rebooted", "sounds_discarded", len(sounds))
	return nil
}

// Close reboots the engine and rejects further sound creation.
// oto contexts cannot be torn down, so the context is simply dropped.
func (e *OtoEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.Reboot()
}

func (e *OtoEngine) snapshot() []*otoSound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*otoSound(nil), e.order...)
}

// otoSound couples the sound state machine to one oto player.
// Positions track wall-clock time from the last start, which stays
// within one buffer of the audible position.
type otoSound struct {
	eng  *OtoEngine
	id   string
	src  string
	cb   Callbacks
	tick time.Duration

	mu         sync.Mutex
	clip       *codec.Clip
	player     *oto.Player
	readyState ReadyState
	playState  PlayState
	paused     bool
	muted      bool
	volume     int
	duration   int64
	base       int64
	started    time.Time
	pending    bool
	discarded  bool
	gen        int
}

var _ Handle = (*otoSound)(nil)

func (s *otoSound) ID() string  { return s.id }
func (s *otoSound) Src() string { return s.src }

// Status returns a snapshot of the sound's current state
func (s *otoSound) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *otoSound) statusLocked() Status {
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

func (s *otoSound) positionLocked() int64 {
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

// gainLocked computes the player gain from volume and mute state
func (s *otoSound) gainLocked() float64 {
	if s.muted {
		return 0
	}
	return float64(s.volume) / 100
}

// load decodes src, normalizes it to the engine output format, and
// builds the player. Fires OnLoad exactly once.
func (s *otoSound) load(ctx context.Context) {
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

	decoded, err := s.eng.registry.Decode(s.src, file)
	if err != nil {
		s.failLoad(err)
		return
	}

	clip, err := codec.Normalize(decoded, s.eng.opts.SampleRate, s.eng.opts.Channels)
	if err != nil {
		s.failLoad(err)
		return
	}

	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return
	}
	s.clip = clip
	s.duration = clip.DurationMillis()
	s.readyState = ReadyLoaded
	s.player = s.eng.ctx.NewPlayer(bytes.NewReader(clip.Samples))
	s.player.SetVolume(s.gainLocked())
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

func (s *otoSound) failLoad(cause error) {
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
func (s *otoSound) Play() error {
	<-s.eng.ready

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
	s.player.SetVolume(s.gainLocked())
	s.player.Play()
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

// Pause halts output while keeping the sound active
func (s *otoSound) Pause() error {
	s.mu.Lock()
	if s.playState != PlayActive || s.paused {
		s.mu.Unlock()
		return nil
	}

	s.player.Pause()
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
func (s *otoSound) Resume() error {
	s.mu.Lock()
	if s.playState != PlayActive || !s.paused {
		s.mu.Unlock()
		return nil
	}

	s.paused = false
	s.started = time.Now()
	s.gen++
	gen := s.gen
	s.player.SetVolume(s.gainLocked())
	s.player.Play()
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
func (s *otoSound) Stop() error {
	s.mu.Lock()
	if s.playState != PlayActive {
		s.mu.Unlock()
		return nil
	}

	s.player.Pause()
	if _, err := s.player.Seek(0, io.SeekStart); err != nil {
		slog.Error("failed to rewind player on stop", "sound_id", s.id, "error", err)
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
func (s *otoSound) SetPosition(ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ms < 0 {
		ms = 0
	}
	if s.duration > 0 && ms > s.duration {
		ms = s.duration
	}

	if s.player != nil && s.clip != nil {
		offset := int64(s.clip.OffsetForMillis(ms))
		if _, err := s.player.Seek(offset, io.SeekStart); err != nil {
			slog.Error("player seek failed", "sound_id", s.id, "position_ms", ms, "error", err)
			return fmt.Errorf("seek failed: %w", err)
		}
	}

	s.base = ms
	if !s.started.IsZero() {
		s.started = time.Now()
	}

	slog.Debug("sound position set", "sound_id", s.id, "position_ms", ms)
	return nil
}

// SetVolume sets the configured volume, clamped to 0..100. The gain
// change is audible immediately unless the engine is muted.
func (s *otoSound) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	s.mu.Lock()
	s.volume = volume
	if s.player != nil {
		s.player.SetVolume(s.gainLocked())
	}
	s.mu.Unlock()

	slog.Debug("sound volume set", "sound_id", s.id, "volume", volume)
	return nil
}

func (s *otoSound) setMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	if s.player != nil {
		s.player.SetVolume(s.gainLocked())
	}
	s.mu.Unlock()
}

// discard releases the player without firing callbacks
func (s *otoSound) discard() {
	s.mu.Lock()
	s.discarded = true
	s.playState = PlayStopped
	s.paused = false
	s.started = time.Time{}
	s.gen++
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		if err := player.Close(); err != nil {
			slog.Debug("player close reported error", "sound_id", s.id, "error", err)
		}
	}
}

// run drives progress ticks and finish detection until the sound
// pauses, stops, or a newer generation takes over. Finish waits for
// the player to drain its buffer so the audible tail is not clipped.
func (s *otoSound) run(gen int) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if s.gen != gen || s.discarded || s.playState != PlayActive || s.paused {
			s.mu.Unlock()
			return
		}

		pos := s.positionLocked()
		drained := s.player != nil && !s.player.IsPlaying()
		if s.duration > 0 && pos >= s.duration && drained {
			if _, err := s.player.Seek(0, io.SeekStart); err != nil {
				slog.Error("failed to rewind player on finish", "sound_id", s.id, "error", err)
			}
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
