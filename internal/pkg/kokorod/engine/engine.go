// Package engine defines the boundary to the neural synthesis backend.
// The model itself is opaque: it turns one text chunk into an ordered
// stream of fragments and everything else about it (weights, devices,
// phonemization) stays behind this interface.
package engine

import (
	"context"
	"time"

	"kokorod/internal/pkg/kokorod/audio"
)

// Fragment is one synthesized piece of a chunk. Audio may be nil when
// the backend produced no waveform for the piece; callers filter those
// out before assembly.
type Fragment struct {
	Graphemes string
	Phonemes  string
	Audio     *audio.Audio
}

type Engine interface {
	// Generate synthesizes one text chunk. Fragments come back in
	// utterance order.
	Generate(ctx context.Context, text, voice string, speed float32) ([]Fragment, error)
	ListVoices() []string
	Info() EngineInfo
	Close() error
}

// ContainerEngine is implemented by backends that hand back encoded WAV
// bytes, letting the caller splice containers without re-decoding PCM.
type ContainerEngine interface {
	Engine
	GenerateWAV(ctx context.Context, text, voice string, speed float32) ([]byte, error)
}

type EngineInfo struct {
	Name       string
	Languages  []string
	SampleRate int
}

type EngineConfig struct {
	Voice         string
	LangCode      string
	URL           string
	Command       string
	Timeout       time.Duration
	MaxConcurrent int
}
