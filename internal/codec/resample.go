package codec

import (
	"fmt"
	"log/slog"

	"github.com/gopxl/beep"
)

// resampleQuality balances fidelity against CPU for beep's resampler.
// 4 is transparent for speech and UI sounds.
const resampleQuality = 4

// clipStreamer adapts a Clip to beep.Streamer, converting interleaved
// integer PCM to beep's stereo float64 frames. Mono clips play on both
// channels; clips with more than two channels contribute their first
// two.
type clipStreamer struct {
	clip  *Clip
	frame int
}

func (s *clipStreamer) Stream(samples [][2]float64) (int, bool) {
	total := s.clip.Frames()
	if s.frame >= total {
		return 0, false
	}

	n := 0
	for n < len(samples) && s.frame < total {
		left := s.sampleAt(s.frame, 0)
		right := left
		if s.clip.Channels > 1 {
			right = s.sampleAt(s.frame, 1)
		}
		samples[n][0] = left
		samples[n][1] = right
		n++
		s.frame++
	}
	return n, true
}

func (s *clipStreamer) Err() error {
	return nil
}

// sampleAt reads one channel of one frame as a float64 in [-1, 1)
func (s *clipStreamer) sampleAt(frame, channel int) float64 {
	width := s.clip.Format.BytesPerSample()
	offset := frame*s.clip.BytesPerFrame() + channel*width
	raw := s.clip.Samples

	switch s.clip.Format {
	case FormatS16:
		v := int16(raw[offset]) | int16(raw[offset+1])<<8
		return float64(v) / (1 << 15)
	case FormatS24:
		v := int32(raw[offset]) | int32(raw[offset+1])<<8 | int32(raw[offset+2])<<16
		if v&0x800000 != 0 {
			v |= ^int32(0xFFFFFF)
		}
		return float64(v) / (1 << 23)
	case FormatS32:
		v := int32(raw[offset]) | int32(raw[offset+1])<<8 | int32(raw[offset+2])<<16 | int32(raw[offset+3])<<24
		return float64(v) / (1 << 31)
	default:
		return 0
	}
}

// Normalize converts a clip to 16-bit PCM at the given output rate and
// channel count, resampling through beep when the rates differ. A clip
// that already matches is returned as-is.
func Normalize(clip *Clip, sampleRate, channels int) (*Clip, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return nil, ErrInvalidData
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported output channel count: %d", channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid output sample rate: %d", sampleRate)
	}

	if clip.Format == FormatS16 &&
		clip.SampleRate == uint32(sampleRate) &&
		clip.Channels == uint32(channels) {
		slog.Debug("clip already normalized",
			"sample_rate", sampleRate,
			"channels", channels)
		return clip, nil
	}

	slog.Debug("normalizing clip",
		"from_rate", clip.SampleRate,
		"to_rate", sampleRate,
		"from_channels", clip.Channels,
		"to_channels", channels,
		"from_format", clip.Format.String())

	var streamer beep.Streamer = &clipStreamer{clip: clip}
	if clip.SampleRate != uint32(sampleRate) {
		streamer = beep.Resample(resampleQuality,
			beep.SampleRate(clip.SampleRate),
			beep.SampleRate(sampleRate),
			streamer)
	}

	raw := drainToS16(streamer, channels)
	if len(raw) == 0 {
		slog.Error("normalization produced no samples")
		return nil, ErrInvalidData
	}

	normalized := &Clip{
		Samples:    raw,
		Channels:   uint32(channels),
		SampleRate: uint32(sampleRate),
		Format:     FormatS16,
	}

	slog.Debug("clip normalized",
		"total_bytes", len(raw),
		"duration_ms", normalized.DurationMillis())

	return normalized, nil
}

// drainToS16 pulls a streamer dry, packing frames as little-endian
// 16-bit PCM. Stereo output keeps both channels; mono averages them.
func drainToS16(streamer beep.Streamer, channels int) []byte {
	var raw []byte
	buf := make([][2]float64, 512)

	for {
		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			if channels == 1 {
				raw = appendS16(raw, (buf[i][0]+buf[i][1])/2)
			} else {
				raw = appendS16(raw, buf[i][0])
				raw = appendS16(raw, buf[i][1])
			}
		}
		if !ok {
			return raw
		}
	}
}

// appendS16 clamps a float sample and appends it as two bytes
func appendS16(raw []byte, sample float64) []byte {
	if sample > 1 {
		sample = 1
	}
	if sample < -1 {
		sample = -1
	}
	v := int16(sample * ((1 << 15) - 1))
	return append(raw, byte(v), byte(v>>8))
}
