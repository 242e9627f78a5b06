//go:build cgo

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/spf13/afero"

	"soundbridge.dev/internal/codec"
)

// MalgoEngine plays sounds through gen2brain/malgo (miniaudio). Each
// sound gets its own playback device configured at the clip's native
// format, so no resampling happens on this path.
type MalgoEngine struct {
	opts     Options
	fsys     afero.Fs
	registry *codec.Registry
	audio    *malgo.AllocatedContext
	ready    chan struct{}

	mu      sync.Mutex
	handles map[string]*malgoSound
	order   []*malgoSound
	nextID  int64
	muted   bool
	closed  bool
}

var _ Engine = (*MalgoEngine)(nil)

// NewMalgoEngine creates a malgo-backed engine. Requires cgo and a
// working audio backend on the host.
func NewMalgoEngine(opts Options, fsys afero.Fs) (Engine, error) {
	opts = opts.withDefaults()

	slog.Debug("creating malgo engine")

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize malgo context", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEngineNotAvailable, err)
	}

	// Device init is synchronous, the engine is ready as soon as the
	// context exists.
	ready := make(chan struct{})
	close(ready)

	slog.Debug("malgo engine created")

	return &MalgoEngine{
		opts:     opts,
		fsys:     fsys,
		registry: codec.NewDefaultRegistry(),
		audio:    audioCtx,
		ready:    ready,
		handles:  make(map[string]*malgoSound),
	}, nil
}

// Ready reports engine readiness
func (e *MalgoEngine) Ready() <-chan struct{} {
	return e.ready
}

// CreateSound allocates a handle and starts decoding src in the
// background
func (e *MalgoEngine) CreateSound(ctx context.Context, src string, cb Callbacks) (Handle, error) {
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

	sound := &malgoSound{
		eng:        e,
		id:         id,
		src:        src,
		cb:         cb,
		readyState: ReadyLoading,
		volume:     e.opts.Volume,
		muted:      e.muted,
		tick:       e.opts.TickInterval,
	}
	sound.storeGain()
	e.handles[id] = sound
	e.order = append(e.order, sound)
	e.mu.Unlock()

	slog.Debug("sound created", "sound_id", id, "src", src)

	go sound.load(ctx)

	return sound, nil
}

// PauseAll pauses every active sound in creation order
func (e *MalgoEngine) PauseAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Pause(); err != nil {
			return err
		}
	}
	return nil
}

// ResumeAll resumes every paused sound in creation order
func (e *MalgoEngine) ResumeAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Resume(); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every active sound in creation order
func (e *MalgoEngine) StopAll() error {
	for _, sound := range e.snapshot() {
		if err := sound.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// MuteAll silences output without touching configured volumes
func (e *MalgoEngine) MuteAll() error {
	e.setMuted(true)
	return nil
}

// UnmuteAll restores configured output volumes
func (e *MalgoEngine) UnmuteAll() error {
	e.setMuted(false)
	return nil
}

func (e *MalgoEngine) setMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	sounds := append([]*malgoSound(nil), e.order...)
	e.mu.Unlock()

	for _, sound := range sounds {
		sound.setMuted(muted)
	}

	slog.Debug("engine mute state changed", "muted", muted, "sounds", len(sounds))
}

// Reboot tears down every device without firing callbacks. The malgo
// context stays alive for reuse.
func (e *MalgoEngine) Reboot() error {
	e.mu.Lock()
	sounds := e.order
	e.handles = make(map[string]*malgoSound)
	e.order = nil
	e.mu.Unlock()

	for _, sound := range sounds {
		sound.discard()
	}

	slog.Debug("malgo engine rebooted", "sounds_discarded", len(sounds))
	return nil
}

// Close reboots the engine and releases the malgo context.
// malgo requires both Uninit and Free.
func (e *MalgoEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if err := e.Reboot(); err != nil {
		slog.Error("error discarding sounds during close", "error", err)
	}

	if err := e.audio.Uninit(); err != nil {
		slog.Error("failed to uninitialize malgo context", "error", err)
		return err
	}
	e.audio.Free()

	slog.Debug("malgo engine closed")
	return nil
}

func (e *MalgoEngine) snapshot() []*malgoSound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*malgoSound(nil), e.order...)
}

// malgoSound couples the sound state machine to one malgo device.
// The data callback reads only the immutable clip and the frames/gain
// atomics, never the mutex, so device start cannot deadlock against
// control calls.
type malgoSound struct {
	eng  *MalgoEngine
	id   string
	src  string
	cb   Callbacks
	tick time.Duration

	frames atomic.Uint32
	gain   atomic.Uint64

	mu         sync.Mutex
	clip       *codec.Clip
	device     *malgo.Device
	readyState ReadyState
	playState  PlayState
	paused     bool
	muted      bool
	volume     int
	duration   int64
	pending    bool
	discarded  bool
	gen        int
}

var _ Handle = (*malgoSound)(nil)

func (s *malgoSound) ID() string  { return s.id }
func (s *malgoSound) Src() string { return s.src }

// Status returns a snapshot of the sound's current state
func (s *malgoSound) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *malgoSound) statusLocked() Status {
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

// positionLocked derives the position from frames actually delivered
// to the device, which tracks the audible position exactly
func (s *malgoSound) positionLocked() int64 {
	if s.clip == nil || s.clip.SampleRate == 0 {
		return 0
	}
	pos := int64(s.frames.Load()) * 1000 / int64(s.clip.SampleRate)
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	return pos
}

// storeGain publishes the effective gain for the data callback
func (s *malgoSound) storeGain() {
	gain := float64(s.volume) / 100
	if s.muted {
		gain = 0
	}
	s.gain.Store(math.Float64bits(gain))
}

// load decodes src and settles the ready state. Fires OnLoad exactly
// once. The device itself is created lazily on first play.
func (s *malgoSound) load(ctx context.Context) {
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
	s.clip = clip
	s.duration = clip.DurationMillis()
	s.readyState = ReadyLoaded
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

func (s *malgoSound) failLoad(cause error) {
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

// initDeviceLocked builds and starts the playback device for the
// loaded clip. Caller holds s.mu.
func (s *malgoSound) initDeviceLocked() error {
	clip := s.clip

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgoFormat(clip.Format)
	deviceConfig.Playback.Channels = clip.Channels
	deviceConfig.SampleRate = clip.SampleRate
	deviceConfig.Alsa.NoMMap = 1
	if frames := s.eng.opts.rawInt("period_frames", 0); frames > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(frames)
	}

	bytesPerFrame := clip.BytesPerFrame()
	totalBytes := len(clip.Samples)

	onSamples := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		startByte := int(s.frames.Load()) * bytesPerFrame

		if startByte >= totalBytes {
			for i := range pOutputSample {
				pOutputSample[i] = 0
			}
			return
		}

		bytesToCopy := int(framecount) * bytesPerFrame
		if avail := totalBytes - startByte; bytesToCopy > avail {
			bytesToCopy = avail
		}

		copy(pOutputSample[:bytesToCopy], clip.Samples[startByte:startByte+bytesToCopy])

		// The device reuses the buffer, anything past the clip tail
		// must be zeroed or it plays as garbage.
		for i := bytesToCopy; i < len(pOutputSample); i++ {
			pOutputSample[i] = 0
		}

		gain := math.Float64frombits(s.gain.Load())
		if gain != 1.0 {
			scaleSamples(pOutputSample[:bytesToCopy], clip.Format, gain)
		}

		s.frames.Add(framecount)
	}

	device, err := malgo.InitDevice(s.eng.audio.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		slog.Error("failed to initialize playback device", "sound_id", s.id, "error", err)
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		slog.Error("failed to start playback device", "sound_id", s.id, "error", err)
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	s.device = device
	return nil
}

// Play starts playback, resumes a paused sound, or queues a pending
// start while the load is still settling.
func (s *malgoSound) Play() error {
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

	if s.device == nil {
		if err := s.initDeviceLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	} else if err := s.device.Start(); err != nil {
		s.mu.Unlock()
		slog.Error("failed to restart playback device", "sound_id", s.id, "error", err)
		return fmt.Errorf("failed to restart playback device: %w", err)
	}

	s.playState = PlayActive
	s.paused = false
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

// Pause halts the device while keeping the frame position
func (s *malgoSound) Pause() error {
	s.mu.Lock()
	if s.playState != PlayActive || s.paused {
		s.mu.Unlock()
		return nil
	}

	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			slog.Error("failed to stop device on pause", "sound_id", s.id, "error", err)
		}
	}
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
func (s *malgoSound) Resume() error {
	s.mu.Lock()
	if s.playState != PlayActive || !s.paused {
		s.mu.Unlock()
		return nil
	}

	if s.device != nil {
		if err := s.device.Start(); err != nil {
			s.mu.Unlock()
			slog.Error("failed to restart device on resume", "sound_id", s.id, "error", err)
			return fmt.Errorf("failed to restart device: %w", err)
		}
	}
	s.paused = false
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

// Stop ends playback, releases the device, and rewinds to the start
func (s *malgoSound) Stop() error {
	s.mu.Lock()
	if s.playState != PlayActive {
		s.mu.Unlock()
		return nil
	}

	device := s.device
	s.device = nil
	s.playState = PlayStopped
	s.paused = false
	s.frames.Store(0)
	s.gen++
	st := s.statusLocked()
	s.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}

	slog.Debug("sound stopped", "sound_id", s.id)

	if s.cb.OnStop != nil {
		s.cb.OnStop(st)
	}
	return nil
}

// SetPosition seeks to an absolute position in milliseconds. The data
// callback picks up the new offset on its next cycle.
func (s *malgoSound) SetPosition(ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ms < 0 {
		ms = 0
	}
	if s.duration > 0 && ms > s.duration {
		ms = s.duration
	}

	if s.clip != nil {
		frame := ms * int64(s.clip.SampleRate) / 1000
		if max := int64(s.clip.Frames()); frame > max {
			frame = max
		}
		s.frames.Store(uint32(frame))
	}

	slog.Debug("sound position set", "sound_id", s.id, "position_ms", ms)
	return nil
}

// SetVolume sets the configured volume, clamped to 0..100
func (s *malgoSound) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	s.mu.Lock()
	s.volume = volume
	s.storeGain()
	s.mu.Unlock()

	slog.Debug("sound volume set", "sound_id", s.id, "volume", volume)
	return nil
}

func (s *malgoSound) setMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.storeGain()
	s.mu.Unlock()
}

// discard releases the device without firing callbacks
func (s *malgoSound) discard() {
	s.mu.Lock()
	s.discarded = true
	s.playState = PlayStopped
	s.paused = false
	s.gen++
	device := s.device
	s.device = nil
	s.mu.Unlock()

	if device != nil {
		device.Stop()
		device.Uninit()
	}
}

// run drives progress ticks and finish detection until the sound
// pauses, stops, or a newer generation takes over
func (s *malgoSound) run(gen int) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		if s.gen != gen || s.discarded || s.playState != PlayActive || s.paused {
			s.mu.Unlock()
			return
		}

		finished := s.clip != nil && s.frames.Load() >= uint32(s.clip.Frames())
		if finished {
			device := s.device
			s.device = nil
			s.playState = PlayStopped
			s.paused = false
			s.frames.Store(0)
			s.gen++
			st := s.statusLocked()
			st.Position = s.duration
			s.mu.Unlock()

			if device != nil {
				device.Stop()
				device.Uninit()
			}

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

// malgoFormat maps a codec sample format to the malgo equivalent
func malgoFormat(format codec.SampleFormat) malgo.FormatType {
	switch format {
	case codec.FormatS16:
		return malgo.FormatS16
	case codec.FormatS24:
		return malgo.FormatS24
	case codec.FormatS32:
		return malgo.FormatS32
	default:
		slog.Warn("unknown sample format, assuming 16-bit", "format", format)
		return malgo.FormatS16
	}
}

// scaleSamples applies gain to interleaved little-endian samples
func scaleSamples(samples []byte, format codec.SampleFormat, gain float64) {
	switch format {
	case codec.FormatS16:
		for i := 0; i+1 < len(samples); i += 2 {
			sample := int16(samples[i]) | int16(samples[i+1])<<8
			sample = int16(float64(sample) * gain)
			samples[i] = byte(sample)
			samples[i+1] = byte(sample >> 8)
		}
	case codec.FormatS24:
		for i := 0; i+2 < len(samples); i += 3 {
			sample := int32(samples[i]) | int32(samples[i+1])<<8 | int32(samples[i+2])<<16
			if sample&0x800000 != 0 {
				sample |= ^int32(0xFFFFFF)
			}
			sample = int32(float64(sample) * gain)
			samples[i] = byte(sample)
			samples[i+1] = byte(sample >> 8)
			samples[i+2] = byte(sample >> 16)
		}
	case codec.FormatS32:
		for i := 0; i+3 < len(samples); i += 4 {
			sample := int32(samples[i]) | int32(samples[i+1])<<8 |
				int32(samples[i+2])<<16 | int32(samples[i+3])<<24
			sample = int32(float64(sample) * gain)
			samples[i] = byte(sample)
			samples[i+1] = byte(sample >> 8)
			samples[i+2] = byte(sample >> 16)
			samples[i+3] = byte(sample >> 24)
		}
	default:
		slog.Warn("gain not applied for format", "format", format)
	}
}
