// Package audio holds the in-memory waveform type and the RIFF/WAVE
// container handling used to persist and merge synthesized speech.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	SampleRate    = 24000
	NumChannels   = 1
	BitsPerSample = 16
)

// headerSize is the canonical RIFF + fmt + data header length.
const headerSize = 44

var (
	ErrNotWAV      = errors.New("audio: missing RIFF/WAVE magic")
	ErrNoDataChunk = errors.New("audio: no data chunk found")
)

// Audio is a mono waveform held as float32 samples in [-1, 1].
type Audio struct {
	Samples    []float32
	SampleRate int
}

func NewAudio(samples []float32) *Audio {
	return &Audio{
		Samples:    samples,
		SampleRate: SampleRate,
	}
}

func (a *Audio) Duration() float64 {
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// Format describes the PCM layout declared in a WAV header.
type Format struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int
}

func DefaultFormat() Format {
	return Format{
		SampleRate:    SampleRate,
		NumChannels:   NumChannels,
		BitsPerSample: BitsPerSample,
	}
}

func (f Format) byteRate() uint32 {
	return uint32(f.SampleRate * f.NumChannels * f.BitsPerSample / 8)
}

func (f Format) blockAlign() uint16 {
	return uint16(f.NumChannels * f.BitsPerSample / 8)
}

// EncodeHeader builds a canonical 44-byte PCM WAV header for dataSize
// payload bytes. riff size is always 36 + dataSize.
func EncodeHeader(f Format, dataSize int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(f.NumChannels))
	binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(buf, binary.LittleEndian, f.byteRate())
	binary.Write(buf, binary.LittleEndian, f.blockAlign())
	binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))

	return buf.Bytes()
}

// ParseHeader reads back the format fields and data payload size from a
// WAV container. It scans subchunks so headers with extra chunks before
// data still parse.
func ParseHeader(b []byte) (Format, int, error) {
	f, dataSize, _, err := parseContainer(b)
	return f, dataSize, err
}

func parseContainer(b []byte) (Format, int, int, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Format{}, 0, 0, ErrNotWAV
	}

	var f Format
	sawFmt := false
	pos := 12
	for pos+8 <= len(b) {
		tag := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		switch tag {
		case "fmt ":
			if size < 16 || body+16 > len(b) {
				return Format{}, 0, 0, fmt.Errorf("audio: truncated fmt chunk")
			}
			f.NumChannels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			sawFmt = true
		case "data":
			if !sawFmt {
				return Format{}, 0, 0, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			return f, size, body, nil
		}
		pos = body + size
		if size%2 != 0 {
			pos++ // RIFF chunks are word aligned
		}
	}
	return Format{}, 0, 0, ErrNoDataChunk
}

// EncodeWAV quantizes the samples to 16-bit signed PCM and wraps them in
// a canonical container.
func (a *Audio) EncodeWAV() []byte {
	dataSize := len(a.Samples) * NumChannels * (BitsPerSample / 8)
	out := make([]byte, 0, headerSize+dataSize)
	out = append(out, EncodeHeader(Format{
		SampleRate:    a.SampleRate,
		NumChannels:   NumChannels,
		BitsPerSample: BitsPerSample,
	}, dataSize)...)

	for _, sample := range a.Samples {
		clamped := sample
		if clamped > 1.0 {
			clamped = 1.0
		} else if clamped < -1.0 {
			clamped = -1.0
		}
		v := uint16(int16(clamped * math.MaxInt16))
		out = append(out, byte(v), byte(v>>8))
	}
	return out
}

func (a *Audio) WriteWAV(w io.Writer) error {
	_, err := w.Write(a.EncodeWAV())
	return err
}

func (a *Audio) SaveWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()
	return a.WriteWAV(f)
}

// DecodeWAV parses a 16-bit PCM container back into float32 samples.
func DecodeWAV(b []byte) (*Audio, error) {
	f, dataSize, offset, err := parseContainer(b)
	if err != nil {
		return nil, err
	}
	if f.BitsPerSample != 16 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d", f.BitsPerSample)
	}

	payload := b[offset:]
	if dataSize < len(payload) {
		payload = payload[:dataSize]
	}

	samples := make([]float32, len(payload)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(payload[i*2 : i*2+2]))
		samples[i] = float32(v) / float32(math.MaxInt16+1)
	}
	return &Audio{Samples: samples, SampleRate: f.SampleRate}, nil
}

func LoadWAV(path string) (*Audio, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DecodeWAV(b)
}
