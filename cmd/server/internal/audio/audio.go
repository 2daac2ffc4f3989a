// Package audio provides time-addressed access to an uploaded recording in a
// canonical format: mono PCM16 at 16 kHz, the rate the diarization and
// recognition backends expect. It is a thin I/O leaf; all temporal reasoning
// about speakers and text lives in the transcript package.
package audio

import (
	"bytes"
	"fmt"
	"os"
)

// CanonicalSampleRate is the sample rate every clip is resampled to.
const CanonicalSampleRate = 16000

// Clip is a decoded recording in canonical format. Clips are immutable;
// Slice returns a new Clip over copied samples.
type Clip struct {
	samples []int16
}

// Load reads a WAV file and converts it to canonical format, downmixing
// multi-channel audio by averaging and linearly resampling non-16 kHz input.
func Load(path string) (*Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return Decode(data)
}

// Decode converts raw WAV bytes to a canonical Clip.
func Decode(data []byte) (*Clip, error) {
	samples, format, err := decodeWAV(data)
	if err != nil {
		return nil, err
	}

	mono := downmix(samples, format.channels)
	if format.sampleRate != CanonicalSampleRate {
		mono = resample(mono, format.sampleRate, CanonicalSampleRate)
	}
	return &Clip{samples: mono}, nil
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	return float64(len(c.samples)) / CanonicalSampleRate
}

// Samples returns the number of samples in the clip.
func (c *Clip) Samples() int {
	return len(c.samples)
}

// Slice returns the span [start, end) in seconds, clamped to the clip
// bounds. A span that is empty after clamping yields a zero-length clip, not
// an error; the caller decides how to represent silence.
func (c *Clip) Slice(start, end float64) *Clip {
	startSample := int(start * CanonicalSampleRate)
	endSample := int(end * CanonicalSampleRate)

	if startSample < 0 {
		startSample = 0
	}
	if endSample > len(c.samples) {
		endSample = len(c.samples)
	}
	if endSample <= startSample {
		return &Clip{samples: []int16{}}
	}

	out := make([]int16, endSample-startSample)
	copy(out, c.samples[startSample:endSample])
	return &Clip{samples: out}
}

// EncodeWAV serializes the clip as a canonical mono 16 kHz PCM16 WAV.
func (c *Clip) EncodeWAV() ([]byte, error) {
	dataSize := len(c.samples) * bytesPerSample
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + dataSize)

	if err := writeWAVHeader(&buf, CanonicalSampleRate, 1, dataSize); err != nil {
		return nil, err
	}
	for _, s := range c.samples {
		buf.WriteByte(byte(s))
		buf.WriteByte(byte(s >> 8))
	}
	return buf.Bytes(), nil
}

// WriteFile writes the clip as a WAV file, used for per-turn slices handed
// to the recognition backend.
func (c *Clip) WriteFile(path string) error {
	data, err := c.EncodeWAV()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// downmix averages interleaved channels into one.
func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}

// resample converts between sample rates by linear interpolation. Quality is
// sufficient for speech models at 16 kHz; the backends apply their own
// front-end filtering.
func resample(samples []int16, from, to int) []int16 {
	if from == to || len(samples) == 0 {
		return samples
	}
	outLen := int(int64(len(samples)) * int64(to) / int64(from))
	if outLen == 0 {
		return []int16{}
	}
	out := make([]int16, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
	}
	return out
}
