package codec

import (
	"bytes"
	"io"
	"log/slog"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

// AiffDecoder handles AIFF audio format decoding
type AiffDecoder struct{}

// NewAiffDecoder creates a new AIFF decoder instance
func NewAiffDecoder() *AiffDecoder {
	return &AiffDecoder{}
}

// FormatName returns the name of the format this decoder handles
func (d *AiffDecoder) FormatName() string {
	return "AIFF"
}

// CanDecode checks if this decoder can handle the given filename
func (d *AiffDecoder) CanDecode(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".aiff") || strings.HasSuffix(lower, ".aif")
}

// Decode reads AIFF audio data from reader and returns a decoded clip
func (d *AiffDecoder) Decode(reader io.Reader) (*Clip, error) {
	slog.Debug("starting AIFF decode")

	// go-audio/aiff wants a ReadSeeker, so buffer the stream first
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read AIFF data", "error", err)
		return nil, ErrReadFailure
	}
	if len(data) == 0 {
		slog.Error("empty AIFF data")
		return nil, ErrInvalidData
	}

	decoder := aiff.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		slog.Error("invalid AIFF file")
		return nil, ErrInvalidData
	}

	sampleRate := uint32(decoder.SampleRate)
	channels := uint32(decoder.NumChans)
	bitDepth := decoder.SampleBitDepth()

	slog.Debug("AIFF format detected",
		"sample_rate", sampleRate,
		"channels", channels,
		"bits_per_sample", bitDepth)

	if channels == 0 || sampleRate == 0 {
		slog.Error("invalid AIFF format parameters",
			"channels", channels,
			"sample_rate", sampleRate)
		return nil, ErrInvalidData
	}

	var sampleFormat SampleFormat
	switch bitDepth {
	case 16:
		sampleFormat = FormatS16
	case 24:
		sampleFormat = FormatS24
	case 32:
		sampleFormat = FormatS32
	default:
		slog.Error("unsupported AIFF bit depth", "bits", bitDepth)
		return nil, ErrUnsupportedFormat
	}

	pcmBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		slog.Error("failed to read AIFF samples", "error", err)
		return nil, ErrReadFailure
	}
	if pcmBuffer == nil || len(pcmBuffer.Data) == 0 {
		slog.Error("no audio data found in AIFF file")
		return nil, ErrInvalidData
	}

	raw := pcmToBytes(pcmBuffer, sampleFormat)

	clip := &Clip{
		Samples:    raw,
		Channels:   channels,
		SampleRate: sampleRate,
		Format:     sampleFormat,
	}

	slog.Debug("AIFF decode completed",
		"total_bytes", len(raw),
		"total_samples", len(pcmBuffer.Data),
		"channels", clip.Channels,
		"sample_rate", clip.SampleRate,
		"duration_ms", clip.DurationMillis())

	return clip, nil
}

// pcmToBytes converts an audio.IntBuffer to interleaved little-endian
// PCM bytes at the given sample width.
func pcmToBytes(pcmBuffer *audio.IntBuffer, format SampleFormat) []byte {
	raw := make([]byte, 0, len(pcmBuffer.Data)*format.BytesPerSample())

	for _, sample := range pcmBuffer.Data {
		switch format {
		case FormatS16:
			val := int16(sample)
			raw = append(raw, byte(val), byte(val>>8))
		case FormatS24:
			val := int32(sample)
			raw = append(raw, byte(val), byte(val>>8), byte(val>>16))
		case FormatS32:
			val := int32(sample)
			raw = append(raw, byte(val), byte(val>>8), byte(val>>16), byte(val>>24))
		}
	}

	return raw
}
