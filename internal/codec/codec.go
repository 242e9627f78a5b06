// Package codec decodes audio files into raw PCM clips the engines
// can play. Format detection prefers magic bytes over file extensions;
// decoded clips can be normalized to an engine's output rate and
// channel count.
package codec

import (
	"errors"
	"io"
	"log/slog"
	"time"
)

// Common decoder errors
var (
	ErrInvalidData       = errors.New("invalid audio data")
	ErrReadFailure       = errors.New("failed to read audio data")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// SampleFormat identifies the PCM encoding of a clip's samples.
// All formats are little-endian signed integers.
type SampleFormat int

const (
	FormatS16 SampleFormat = iota
	FormatS24
	FormatS32
)

// BytesPerSample returns the width of one sample in bytes
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32:
		return 4
	default:
		slog.Warn("unknown sample format, assuming 2 bytes per sample", "format", int(f))
		return 2
	}
}

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16le"
	case FormatS24:
		return "s24le"
	case FormatS32:
		return "s32le"
	default:
		return "unknown"
	}
}

// Clip represents fully decoded audio, interleaved PCM in memory
type Clip struct {
	Samples    []byte
	Channels   uint32
	SampleRate uint32
	Format     SampleFormat
}

// BytesPerFrame returns the size of one interleaved frame
func (c *Clip) BytesPerFrame() int {
	return int(c.Channels) * c.Format.BytesPerSample()
}

// Frames returns the number of complete frames in the clip
func (c *Clip) Frames() int {
	bpf := c.BytesPerFrame()
	if bpf == 0 {
		return 0
	}
	return len(c.Samples) / bpf
}

// Duration returns the clip's playback length
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// DurationMillis returns the clip's playback length in milliseconds
func (c *Clip) DurationMillis() int64 {
	return c.Duration().Milliseconds()
}

// OffsetForMillis converts a position in milliseconds to a
// frame-aligned byte offset, clamped to the clip's bounds.
func (c *Clip) OffsetForMillis(ms int64) int {
	if ms <= 0 || c.SampleRate == 0 {
		return 0
	}
	frame := int(ms * int64(c.SampleRate) / 1000)
	if frames := c.Frames(); frame > frames {
		frame = frames
	}
	return frame * c.BytesPerFrame()
}

// MillisForOffset converts a byte offset back to a position in
// milliseconds.
func (c *Clip) MillisForOffset(offset int) int64 {
	bpf := c.BytesPerFrame()
	if bpf == 0 || c.SampleRate == 0 {
		return 0
	}
	if offset < 0 {
		offset = 0
	}
	frame := offset / bpf
	return int64(frame) * 1000 / int64(c.SampleRate)
}

// Decoder interface for audio format decoding
type Decoder interface {
	// Decode reads audio data from reader and returns a decoded clip
	Decode(reader io.Reader) (*Clip, error)

	// CanDecode checks if this decoder can handle the given filename
	CanDecode(filename string) bool

	// FormatName returns the name of the format this decoder handles
	FormatName() string
}
