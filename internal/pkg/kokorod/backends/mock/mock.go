// Package mock provides a deterministic in-process engine for tests and
// dry runs. It emits a quiet sine tone sized to the text so assembly and
// timing behave like a real backend without loading a model.
package mock

import (
	"context"
	"fmt"
	"math"
	"strings"

	"kokorod/internal/pkg/kokorod/audio"
	"kokorod/internal/pkg/kokorod/engine"
)

func init() {
	engine.Register("mock", NewEngine)
}

// samplesPerChar approximates normal speaking pace at 24 kHz.
const samplesPerChar = 1600

var voices = []string{"af_heart", "af_bella", "af_nicole", "am_michael", "bf_emma", "bm_george"}

type Engine struct{}

func NewEngine(engine.EngineConfig) (engine.Engine, error) {
	return &Engine{}, nil
}

// Generate emits one fragment per newline-separated piece of the chunk,
// mirroring the real model's split behavior.
func (e *Engine) Generate(ctx context.Context, text, voice string, speed float32) ([]engine.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("mock: empty text")
	}
	if speed <= 0 {
		speed = 1.0
	}

	var fragments []engine.Fragment
	for _, piece := range strings.Split(text, "\n") {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		fragments = append(fragments, engine.Fragment{
			Graphemes: piece,
			Phonemes:  "",
			Audio:     audio.NewAudio(tone(len(piece), speed)),
		})
	}
	return fragments, nil
}

func tone(chars int, speed float32) []float32 {
	n := int(float32(chars*samplesPerChar) / speed)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1 * float32(math.Sin(2*math.Pi*220*float64(i)/audio.SampleRate))
	}
	return samples
}

func (e *Engine) ListVoices() []string {
	out := make([]string, len(voices))
	copy(out, voices)
	return out
}

func (e *Engine) Info() engine.EngineInfo {
	return engine.EngineInfo{
		Name:       "mock",
		Languages:  []string{"en"},
		SampleRate: audio.SampleRate,
	}
}

func (e *Engine) Close() error { return nil }
