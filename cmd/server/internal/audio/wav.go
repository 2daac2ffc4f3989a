package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrUnsupportedFormat marks containers the service cannot decode. The
// pipeline surfaces it to the caller as a validation failure.
var ErrUnsupportedFormat = errors.New("unsupported audio container")

const (
	wavHeaderSize  = 44
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
)

type wavFormat struct {
	channels   int
	sampleRate int
}

// decodeWAV parses a RIFF/WAVE container and returns interleaved PCM16
// samples with their format. Only uncompressed PCM with 16-bit samples is
// accepted; everything else is ErrUnsupportedFormat.
func decodeWAV(data []byte) ([]int16, wavFormat, error) {
	var fmt_ wavFormat
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt_, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedFormat)
	}

	var pcm []byte
	haveFmt := false
	// walk chunks; fmt normally precedes data but tolerate any order
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body // tolerate truncated final chunk
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt_, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, fmt_, fmt.Errorf("%w: non-PCM encoding %d", ErrUnsupportedFormat, audioFormat)
			}
			fmt_.channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			fmt_.sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != bitsPerSample {
				return nil, fmt_, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, bits)
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// chunks are word-aligned
		off = body + size + (size & 1)
	}

	if !haveFmt || fmt_.channels <= 0 || fmt_.sampleRate <= 0 {
		return nil, fmt_, fmt.Errorf("%w: missing fmt chunk", ErrUnsupportedFormat)
	}
	if pcm == nil {
		return nil, fmt_, fmt.Errorf("%w: missing data chunk", ErrUnsupportedFormat)
	}

	samples := make([]int16, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples, fmt_, nil
}

// writeWAVHeader writes a 44-byte canonical PCM WAV header.
func writeWAVHeader(w io.Writer, sampleRate, channels, dataSize int) error {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	chunkSize := 36 + dataSize

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(chunkSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16)) // Subchunk1Size
	binary.Write(&buf, binary.LittleEndian, uint16(1))  // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	_, err := w.Write(buf.Bytes())
	return err
}
