package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// makeWAV builds a PCM16 WAV with the given format and per-frame sample
// value repeated across channels.
func makeWAV(t *testing.T, sampleRate, channels, frames int, value int16) []byte {
	t.Helper()
	var pcm bytes.Buffer
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			binary.Write(&pcm, binary.LittleEndian, value)
		}
	}

	var buf bytes.Buffer
	if err := writeWAVHeader(&buf, sampleRate, channels, pcm.Len()); err != nil {
		t.Fatalf("writeWAVHeader: %v", err)
	}
	buf.Write(pcm.Bytes())
	return buf.Bytes()
}

func TestDecodeCanonicalRoundTrip(t *testing.T) {
	data := makeWAV(t, CanonicalSampleRate, 1, CanonicalSampleRate*2, 100)

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if clip.Duration() != 2.0 {
		t.Errorf("Duration = %v, want 2.0", clip.Duration())
	}

	encoded, err := clip.EncodeWAV()
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	again, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode round trip: %v", err)
	}
	if again.Samples() != clip.Samples() {
		t.Errorf("round trip samples = %d, want %d", again.Samples(), clip.Samples())
	}
}

func TestDecodeDownmixesStereo(t *testing.T) {
	data := makeWAV(t, CanonicalSampleRate, 2, 1600, 50)

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Samples() != 1600 {
		t.Errorf("Samples = %d, want 1600", clip.Samples())
	}
}

func TestDecodeResamples(t *testing.T) {
	// one second at 8 kHz becomes one second at 16 kHz
	data := makeWAV(t, 8000, 1, 8000, 10)

	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Samples() != CanonicalSampleRate {
		t.Errorf("Samples = %d, want %d", clip.Samples(), CanonicalSampleRate)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not audio at all"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDecodeRejectsNonPCM(t *testing.T) {
	data := makeWAV(t, CanonicalSampleRate, 1, 16, 0)
	// flip the audio format field to IEEE float (3)
	binary.LittleEndian.PutUint16(data[20:22], 3)

	_, err := Decode(data)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestSlice(t *testing.T) {
	data := makeWAV(t, CanonicalSampleRate, 1, CanonicalSampleRate*10, 7)
	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	t.Run("interior span", func(t *testing.T) {
		s := clip.Slice(2, 5)
		if s.Duration() != 3.0 {
			t.Errorf("Duration = %v, want 3.0", s.Duration())
		}
	})

	t.Run("clamps to clip length", func(t *testing.T) {
		s := clip.Slice(8, 20)
		if s.Duration() != 2.0 {
			t.Errorf("Duration = %v, want 2.0", s.Duration())
		}
	})

	t.Run("empty after clamping", func(t *testing.T) {
		s := clip.Slice(12, 15)
		if s.Samples() != 0 {
			t.Errorf("Samples = %d, want 0", s.Samples())
		}
	})

	t.Run("zero-length span", func(t *testing.T) {
		s := clip.Slice(3, 3)
		if s.Samples() != 0 {
			t.Errorf("Samples = %d, want 0", s.Samples())
		}
	})
}

func TestLoadAndWriteFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(src, makeWAV(t, CanonicalSampleRate, 1, 1600, 3), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	clip, err := Load(src)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	dst := filepath.Join(dir, "out.wav")
	if err := clip.Slice(0, 0.05).WriteFile(dst); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	sliced, err := Load(dst)
	if err != nil {
		t.Fatalf("Load slice: %v", err)
	}
	if sliced.Samples() != 800 {
		t.Errorf("slice samples = %d, want 800", sliced.Samples())
	}
}
