// Package kokorohttp is an engine backed by a Kokoro-compatible speech
// service over HTTP. The service returns fully framed WAV per chunk, so
// the backend also satisfies engine.ContainerEngine and lets the
// pipeline splice containers without decoding.
package kokorohttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"kokorod/internal/pkg/kokorod/audio"
	"kokorod/internal/pkg/kokorod/engine"
)

func init() {
	engine.Register("kokoro-http", NewEngine)
}

const (
	defaultTimeout    = 60 * time.Second
	voicesCacheMaxAge = time.Hour
)

type speechRequest struct {
	Model  string  `json:"model"`
	Input  string  `json:"input"`
	Voice  string  `json:"voice"`
	Format string  `json:"response_format"`
	Speed  float32 `json:"speed,omitempty"`
}

type voicesResponse struct {
	Voices []string `json:"voices"`
}

type Engine struct {
	baseURL   string
	client    *http.Client
	semaphore chan struct{}

	mu           sync.RWMutex
	cachedVoices []string
	cachedAt     time.Time
}

func NewEngine(cfg engine.EngineConfig) (engine.Engine, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("kokorohttp: service URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 2
	}

	e := &Engine{
		baseURL:   strings.TrimSuffix(cfg.URL, "/"),
		client:    &http.Client{Timeout: timeout},
		semaphore: make(chan struct{}, maxConcurrent),
	}
	log.Info().Str("url", e.baseURL).Int("max_concurrent", maxConcurrent).Msg("Kokoro HTTP engine ready")
	return e, nil
}

// GenerateWAV asks the service for one chunk's audio and returns the
// container bytes untouched.
func (e *Engine) GenerateWAV(ctx context.Context, text, voice string, speed float32) ([]byte, error) {
	select {
	case e.semaphore <- struct{}{}:
		defer func() { <-e.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	body, err := json.Marshal(speechRequest{
		Model:  "kokoro",
		Input:  text,
		Voice:  voice,
		Format: "wav",
		Speed:  speed,
	})
	if err != nil {
		return nil, fmt.Errorf("kokorohttp: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("kokorohttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/*")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kokorohttp: speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("kokorohttp: speech request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kokorohttp: read response: %w", err)
	}

	log.Debug().
		Int("text_length", len(text)).
		Int("bytes", len(wav)).
		Dur("elapsed", time.Since(start)).
		Msg("Chunk synthesized")
	return wav, nil
}

func (e *Engine) Generate(ctx context.Context, text, voice string, speed float32) ([]engine.Fragment, error) {
	wav, err := e.GenerateWAV(ctx, text, voice, speed)
	if err != nil {
		return nil, err
	}
	a, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("kokorohttp: decode response audio: %w", err)
	}
	return []engine.Fragment{{Graphemes: text, Audio: a}}, nil
}

// ListVoices fetches the service's voice list, cached for an hour. When
// a refresh fails, the stale list is better than none and is returned
// instead.
func (e *Engine) ListVoices() []string {
	cached, fresh := e.cachedVoicesCopy()
	if fresh {
		return cached
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/audio/voices", nil)
	if err != nil {
		return cached
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch voices")
		return cached
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("Voices request failed")
		return cached
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		log.Warn().Err(err).Msg("Failed to decode voices response")
		return cached
	}

	e.mu.Lock()
	e.cachedVoices = vr.Voices
	e.cachedAt = time.Now()
	e.mu.Unlock()

	out := make([]string, len(vr.Voices))
	copy(out, vr.Voices)
	return out
}

// cachedVoicesCopy returns the cached list, if any, and whether it is
// still inside the cache window.
func (e *Engine) cachedVoicesCopy() ([]string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.cachedVoices) == 0 {
		return nil, false
	}
	out := make([]string, len(e.cachedVoices))
	copy(out, e.cachedVoices)
	return out, time.Since(e.cachedAt) < voicesCacheMaxAge
}

func (e *Engine) Info() engine.EngineInfo {
	return engine.EngineInfo{
		Name:       "kokoro-http",
		Languages:  []string{"en"},
		SampleRate: audio.SampleRate,
	}
}

func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
