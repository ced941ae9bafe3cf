// Package pipeline carries one synthesis request end to end: normalize,
// segment, synthesize per chunk under bounded concurrency, stitch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"kokorod/internal/pkg/kokorod/audio"
	"kokorod/internal/pkg/kokorod/engine"
	"kokorod/internal/pkg/kokorod/normalize"
	"kokorod/internal/pkg/kokorod/segment"
)

var (
	// ErrEmptyText means the request text held nothing synthesizable.
	ErrEmptyText = errors.New("pipeline: text is empty")
	// ErrNoAudio means every chunk failed and nothing could be stitched.
	ErrNoAudio = errors.New("pipeline: no audio was generated")
)

// DefaultFadeDuration is the crossfade overlap applied at chunk seams.
const DefaultFadeDuration = 0.1

type Options struct {
	MaxChunkSize  int
	FadeDuration  float64
	MaxConcurrent int
}

// Request is one synthesis job. Progress, when set, is called after each
// chunk finishes with the number of completed chunks and the total.
type Request struct {
	Text     string
	Voice    string
	Speed    float32
	Progress func(done, total int)
}

type Synthesizer struct {
	eng  engine.Engine
	opts Options
}

func New(eng engine.Engine, opts Options) *Synthesizer {
	if opts.MaxChunkSize < 1 {
		opts.MaxChunkSize = segment.DefaultMaxChunkSize
	}
	if opts.FadeDuration < 0 {
		opts.FadeDuration = 0
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Synthesizer{eng: eng, opts: opts}
}

// Speak synthesizes the request into a single continuous waveform.
// Chunks are dispatched to the engine with at most MaxConcurrent calls
// in flight and reassembled in their original order; a chunk that fails
// is dropped with a warning, and the seams of the surviving chunks are
// crossfaded. All chunks failing is fatal.
func (s *Synthesizer) Speak(ctx context.Context, req Request) (*audio.Audio, error) {
	chunks := segment.Split(normalize.Clean(req.Text), s.opts.MaxChunkSize)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}
	log.Debug().Int("chunks", len(chunks)).Int("max_chunk_size", s.opts.MaxChunkSize).Msg("Text segmented")

	results, err := synthesizeAll(ctx, chunks, s.opts.MaxConcurrent, req.Progress, func(ctx context.Context, chunk string) ([]float32, error) {
		fragments, err := s.eng.Generate(ctx, chunk, req.Voice, req.Speed)
		if err != nil {
			return nil, err
		}
		return flattenFragments(fragments)
	})
	if err != nil {
		return nil, err
	}

	buffers := make([][]float32, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			log.Warn().Err(r.err).Int("chunk", i+1).Int("total", len(chunks)).Msg("Dropping failed chunk")
			continue
		}
		buffers = append(buffers, r.value)
	}
	if len(buffers) == 0 {
		return nil, ErrNoAudio
	}

	samples, err := audio.Concatenate(buffers, audio.SampleRate, s.opts.FadeDuration)
	if err != nil {
		return nil, err
	}
	return audio.NewAudio(samples), nil
}

// SpeakWAV synthesizes the request into an encoded container. Backends
// that return WAV bytes directly are spliced at the container level;
// everything else goes through Speak and is encoded afterwards.
func (s *Synthesizer) SpeakWAV(ctx context.Context, req Request) ([]byte, error) {
	ce, ok := s.eng.(engine.ContainerEngine)
	if !ok {
		a, err := s.Speak(ctx, req)
		if err != nil {
			return nil, err
		}
		return a.EncodeWAV(), nil
	}

	chunks := segment.Split(normalize.Clean(req.Text), s.opts.MaxChunkSize)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}

	results, err := synthesizeAll(ctx, chunks, s.opts.MaxConcurrent, req.Progress, func(ctx context.Context, chunk string) ([]byte, error) {
		return ce.GenerateWAV(ctx, chunk, req.Voice, req.Speed)
	})
	if err != nil {
		return nil, err
	}

	containers := make([][]byte, 0, len(results))
	for i, r := range results {
		if r.err != nil {
			log.Warn().Err(r.err).Int("chunk", i+1).Int("total", len(chunks)).Msg("Dropping failed chunk")
			continue
		}
		containers = append(containers, r.value)
	}
	if len(containers) == 0 {
		return nil, ErrNoAudio
	}

	out, err := audio.MergeWAV(containers, audio.DefaultFormat())
	if errors.Is(err, audio.ErrNoAudio) {
		return nil, ErrNoAudio
	}
	return out, err
}

type result[T any] struct {
	value T
	err   error
}

// synthesizeAll runs synth over every chunk with a bounded worker pool.
// The returned slice is indexed by original chunk position regardless of
// completion order.
func synthesizeAll[T any](ctx context.Context, chunks []string, maxConcurrent int, progress func(done, total int), synth func(context.Context, string) (T, error)) ([]result[T], error) {
	results := make([]result[T], len(chunks))
	sem := make(chan struct{}, maxConcurrent)

	var wg sync.WaitGroup
	var done int
	var doneMu sync.Mutex

	for i, chunk := range chunks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, chunk string) {
			defer wg.Done()
			defer func() { <-sem }()

			log.Debug().Int("chunk", i+1).Int("total", len(chunks)).Int("chars", len(chunk)).Msg("Synthesizing chunk")
			v, err := synth(ctx, chunk)
			results[i] = result[T]{value: v, err: err}

			if progress != nil {
				doneMu.Lock()
				done++
				progress(done, len(chunks))
				doneMu.Unlock()
			}
		}(i, chunk)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// flattenFragments joins the engine's fragment stream for one chunk into
// a single buffer, dropping fragments without a waveform.
func flattenFragments(fragments []engine.Fragment) ([]float32, error) {
	var samples []float32
	for _, f := range fragments {
		if f.Audio == nil {
			continue
		}
		samples = append(samples, f.Audio.Samples...)
	}
	if samples == nil {
		return nil, fmt.Errorf("pipeline: engine produced no waveform")
	}
	return samples, nil
}
