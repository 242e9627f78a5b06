package codec

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Registry manages format decoders and provides format detection
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates a new empty decoder registry
func NewRegistry() *Registry {
	slog.Debug("creating new decoder registry")
	return &Registry{
		decoders: make([]Decoder, 0),
	}
}

// NewDefaultRegistry creates a registry with WAV, MP3, and AIFF decoders
func NewDefaultRegistry() *Registry {
	registry := NewRegistry()

	registry.Register(NewWavDecoder())
	registry.Register(NewMp3Decoder())
	registry.Register(NewAiffDecoder())

	slog.Debug("default decoder registry initialized",
		"supported_formats", registry.SupportedFormats())

	return registry
}

// Register adds a decoder to the registry
func (r *Registry) Register(decoder Decoder) {
	if decoder == nil {
		slog.Warn("attempted to register nil decoder")
		return
	}

	r.decoders = append(r.decoders, decoder)
	slog.Debug("decoder registered", "format", decoder.FormatName(), "total_decoders", len(r.decoders))
}

// SupportedFormats returns the names of all registered formats
func (r *Registry) SupportedFormats() []string {
	formats := make([]string, 0, len(r.decoders))
	for _, decoder := range r.decoders {
		formats = append(formats, decoder.FormatName())
	}
	return formats
}

// mimeFormats maps detected MIME substrings to decoder format names.
// Checked in order; the first match wins.
var mimeFormats = []struct {
	substring string
	format    string
}{
	{"wav", "WAV"},
	{"vnd.wave", "WAV"},
	{"mpeg", "MP3"},
	{"mp3", "MP3"},
	{"aiff", "AIFF"},
}

// DetectByName detects the appropriate decoder from the filename alone
func (r *Registry) DetectByName(filename string) Decoder {
	if filename == "" {
		slog.Debug("empty filename provided for detection")
		return nil
	}

	// Registration order decides priority
	for _, decoder := range r.decoders {
		if decoder.CanDecode(filename) {
			slog.Debug("format detected by extension",
				"filename", filename,
				"format", decoder.FormatName())
			return decoder
		}
	}

	slog.Debug("no decoder found for filename", "filename", filename)
	return nil
}

// DetectByContent detects the format from magic bytes, falling back to
// the filename extension when the content is unrecognizable.
func (r *Registry) DetectByContent(filename string, reader io.Reader) Decoder {
	header := make([]byte, 512)
	n, err := reader.Read(header)
	if err != nil && err != io.EOF {
		slog.Error("failed to read header for magic detection", "filename", filename, "error", err)
		return r.DetectByName(filename)
	}
	if n == 0 {
		slog.Debug("empty content, using extension fallback", "filename", filename)
		return r.DetectByName(filename)
	}

	detected := strings.ToLower(mimetype.Detect(header[:n]).String())
	slog.Debug("magic byte detection result",
		"filename", filename,
		"detected_mime", detected,
		"bytes_analyzed", n)

	for _, m := range mimeFormats {
		if !strings.Contains(detected, m.substring) {
			continue
		}
		if decoder := r.decoderFor(m.format); decoder != nil {
			slog.Debug("format detected by magic bytes",
				"filename", filename,
				"format", decoder.FormatName(),
				"mime_type", detected)
			return decoder
		}
	}

	slog.Debug("magic detection inconclusive, falling back to extension", "filename", filename)
	return r.DetectByName(filename)
}

// decoderFor finds a registered decoder by format name
func (r *Registry) decoderFor(formatName string) Decoder {
	for _, decoder := range r.decoders {
		if strings.EqualFold(decoder.FormatName(), formatName) {
			return decoder
		}
	}
	return nil
}

// Decode decodes an audio stream using the appropriate decoder.
// The whole stream is buffered first so format detection does not
// consume bytes the decoder needs.
func (r *Registry) Decode(filename string, reader io.Reader) (*Clip, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		slog.Error("failed to read content for decode", "filename", filename, "error", err)
		return nil, fmt.Errorf("failed to read audio content: %w", err)
	}

	slog.Debug("buffered content for decode", "filename", filename, "size_bytes", len(content))

	decoder := r.DetectByContent(filename, bytes.NewReader(content))
	if decoder == nil {
		err := fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
		slog.Error("no suitable decoder found", "filename", filename, "error", err)
		return nil, err
	}

	clip, err := decoder.Decode(bytes.NewReader(content))
	if err != nil {
		slog.Error("decode failed",
			"filename", filename,
			"decoder_format", decoder.FormatName(),
			"error", err)
		return nil, err
	}

	slog.Info("decode completed",
		"filename", filename,
		"decoder_format", decoder.FormatName(),
		"channels", clip.Channels,
		"sample_rate", clip.SampleRate,
		"pcm_format", clip.Format.String(),
		"duration_ms", clip.DurationMillis())

	return clip, nil
}
