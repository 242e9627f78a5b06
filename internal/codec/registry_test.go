package codec

import (
	"bytes"
	"testing"
)

func TestDefaultRegistryFormats(t *testing.T) {
	registry := NewDefaultRegistry()

	formats := registry.SupportedFormats()
	if len(formats) != 3 {
		t.Fatalf("expected 3 formats, got %v", formats)
	}

	expected := map[string]bool{"WAV": true, "MP3": true, "AIFF": true}
	for _, format := range formats {
		if !expected[format] {
			t.Errorf("unexpected format %q", format)
		}
	}
}

func TestDetectByName(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		filename string
		format   string
	}{
		{"ding.wav", "WAV"},
		{"DING.WAVE", "WAV"},
		{"song.mp3", "MP3"},
		{"chime.aiff", "AIFF"},
		{"chime.aif", "AIFF"},
		{"data.ogg", ""},
		{"", ""},
	}

	for _, test := range tests {
		decoder := registry.DetectByName(test.filename)
		if test.format == "" {
			if decoder != nil {
				t.Errorf("DetectByName(%q) = %s, want nil", test.filename, decoder.FormatName())
			}
			continue
		}
		if decoder == nil {
			t.Errorf("DetectByName(%q) = nil, want %s", test.filename, test.format)
			continue
		}
		if decoder.FormatName() != test.format {
			t.Errorf("DetectByName(%q) = %s, want %s", test.filename, decoder.FormatName(), test.format)
		}
	}
}

func TestDetectByContentPrefersMagicBytes(t *testing.T) {
	registry := NewDefaultRegistry()

	// WAV content behind a misleading .mp3 extension: magic bytes win
	wavData := makeTestWAV(2, 44100, 64)
	decoder := registry.DetectByContent("mislabeled.mp3", bytes.NewReader(wavData))
	if decoder == nil {
		t.Fatal("expected a decoder")
	}
	if decoder.FormatName() != "WAV" {
		t.Errorf("format = %s, want WAV (magic bytes must beat extension)", decoder.FormatName())
	}
}

func TestDetectByContentExtensionFallback(t *testing.T) {
	registry := NewDefaultRegistry()

	// Unrecognizable bytes fall back to the extension
	junk := []byte("this is not audio content at all, just text")
	decoder := registry.DetectByContent("probably.wav", bytes.NewReader(junk))
	if decoder == nil {
		t.Fatal("expected extension fallback to find the WAV decoder")
	}
	if decoder.FormatName() != "WAV" {
		t.Errorf("format = %s, want WAV", decoder.FormatName())
	}
}

func TestRegistryDecode(t *testing.T) {
	registry := NewDefaultRegistry()

	wavData := makeTestWAV(2, 44100, 441)
	clip, err := registry.Decode("test.wav", bytes.NewReader(wavData))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if clip.Channels != 2 {
		t.Errorf("channels = %d, want 2", clip.Channels)
	}
	if clip.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", clip.SampleRate)
	}
	if clip.Format != FormatS16 {
		t.Errorf("format = %v, want FormatS16", clip.Format)
	}
	if clip.Frames() != 441 {
		t.Errorf("frames = %d, want 441", clip.Frames())
	}
	if clip.DurationMillis() != 10 {
		t.Errorf("duration = %dms, want 10ms", clip.DurationMillis())
	}
}

func TestRegistryDecodeUnsupported(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.Decode("garbage.xyz", bytes.NewReader([]byte("nothing recognizable")))
	if err == nil {
		t.Fatal("expected error for undecodable content")
	}
}

func TestWavDecoderRejectsBadData(t *testing.T) {
	decoder := NewWavDecoder()

	if _, err := decoder.Decode(bytes.NewReader(nil)); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := decoder.Decode(bytes.NewReader([]byte("not a wav file"))); err == nil {
		t.Error("expected error for invalid header")
	}
}

func TestWavDecoderRoundTrip(t *testing.T) {
	decoder := NewWavDecoder()

	clip, err := decoder.Decode(bytes.NewReader(makeTestWAV(1, 22050, 100)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if clip.Channels != 1 || clip.SampleRate != 22050 {
		t.Errorf("format = %dch@%d, want 1ch@22050", clip.Channels, clip.SampleRate)
	}

	// Ramp values survive: frame 5 carries sample value 5
	val := int16(clip.Samples[10]) | int16(clip.Samples[11])<<8
	if val != 5 {
		t.Errorf("frame 5 value = %d, want 5", val)
	}
}

func TestMp3DecoderRejectsBadData(t *testing.T) {
	decoder := NewMp3Decoder()

	if _, err := decoder.Decode(bytes.NewReader([]byte("definitely not an mp3"))); err == nil {
		t.Error("expected error for invalid MP3 data")
	}
}

func TestAiffDecoderRejectsBadData(t *testing.T) {
	decoder := NewAiffDecoder()

	if _, err := decoder.Decode(bytes.NewReader(nil)); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := decoder.Decode(bytes.NewReader([]byte("FORMnope"))); err == nil {
		t.Error("expected error for invalid AIFF data")
	}
}
