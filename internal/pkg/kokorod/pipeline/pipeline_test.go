package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kokorod/internal/pkg/kokorod/audio"
	"kokorod/internal/pkg/kokorod/engine"
)

// fakeEngine synthesizes each chunk as a run of samples whose value
// encodes the order the chunk arrived in, so tests can read ordering
// back out of the stitched waveform.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	inflight int32
	peak     int32

	delay  func(chunk string) time.Duration
	fail   func(chunk string) error
	render func(chunk string) []engine.Fragment
}

func (f *fakeEngine) Generate(ctx context.Context, text, voice string, speed float32) ([]engine.Fragment, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		old := atomic.LoadInt32(&f.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&f.peak, old, cur) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.render != nil {
		return f.render(text), nil
	}
	return []engine.Fragment{{Graphemes: text, Audio: tone(text, 10)}}, nil
}

func (f *fakeEngine) ListVoices() []string { return []string{"af_heart"} }
func (f *fakeEngine) Info() engine.EngineInfo {
	return engine.EngineInfo{Name: "fake", SampleRate: audio.SampleRate}
}
func (f *fakeEngine) Close() error { return nil }

// tone builds n samples all set to a value derived from the chunk text.
func tone(chunk string, n int) *audio.Audio {
	v := float32(len(chunk)%7+1) / 10
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = v
	}
	return audio.NewAudio(samples)
}

func TestSpeakSingleChunk(t *testing.T) {
	eng := &fakeEngine{}
	s := New(eng, Options{})

	a, err := s.Speak(context.Background(), Request{Text: "Hello there.", Voice: "af_heart", Speed: 1})
	require.NoError(t, err)
	assert.Len(t, a.Samples, 10)
	assert.Equal(t, audio.SampleRate, a.SampleRate)
	assert.Equal(t, []string{"Hello there."}, eng.calls)
}

func TestSpeakEmptyText(t *testing.T) {
	s := New(&fakeEngine{}, Options{})
	for _, text := range []string{"", "   \n\t  "} {
		_, err := s.Speak(context.Background(), Request{Text: text})
		assert.ErrorIs(t, err, ErrEmptyText)
	}
}

func TestSpeakOrderPreservedUnderConcurrency(t *testing.T) {
	// Later chunks finish first; the stitched output must still follow
	// text order.
	text := "First sentence goes here. Second one is next. Third closes it."
	eng := &fakeEngine{
		delay: func(chunk string) time.Duration {
			if strings.HasPrefix(chunk, "First") {
				return 30 * time.Millisecond
			}
			if strings.HasPrefix(chunk, "Second") {
				return 15 * time.Millisecond
			}
			return 0
		},
		render: func(chunk string) []engine.Fragment {
			var v float32
			switch {
			case strings.HasPrefix(chunk, "First"):
				v = 0.1
			case strings.HasPrefix(chunk, "Second"):
				v = 0.2
			default:
				v = 0.3
			}
			samples := []float32{v, v, v, v}
			return []engine.Fragment{{Graphemes: chunk, Audio: audio.NewAudio(samples)}}
		},
	}
	s := New(eng, Options{MaxChunkSize: 30, FadeDuration: 0, MaxConcurrent: 3})

	a, err := s.Speak(context.Background(), Request{Text: text, Speed: 1})
	require.NoError(t, err)
	require.Len(t, a.Samples, 12)
	assert.Equal(t, []float32{0.1, 0.1, 0.1, 0.1, 0.2, 0.2, 0.2, 0.2, 0.3, 0.3, 0.3, 0.3}, a.Samples)
}

func TestSpeakBoundsConcurrency(t *testing.T) {
	eng := &fakeEngine{
		delay: func(string) time.Duration { return 10 * time.Millisecond },
	}
	s := New(eng, Options{MaxChunkSize: 12, MaxConcurrent: 2})

	text := strings.Repeat("Some words. ", 8)
	_, err := s.Speak(context.Background(), Request{Text: text, Speed: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&eng.peak), int32(2))
}

func TestSpeakDropsFailedChunk(t *testing.T) {
	eng := &fakeEngine{
		fail: func(chunk string) error {
			if strings.HasPrefix(chunk, "Second") {
				return errors.New("synthesis exploded")
			}
			return nil
		},
		render: func(chunk string) []engine.Fragment {
			samples := []float32{float32(len(chunk))}
			return []engine.Fragment{{Graphemes: chunk, Audio: audio.NewAudio(samples)}}
		},
	}
	s := New(eng, Options{MaxChunkSize: 20, FadeDuration: 0})

	a, err := s.Speak(context.Background(), Request{Text: "First part here. Second part here. Third part here.", Speed: 1})
	require.NoError(t, err)
	require.Len(t, a.Samples, 2)
	assert.Equal(t, float32(16), a.Samples[0], "first chunk survives")
	assert.Equal(t, float32(16), a.Samples[1], "third chunk survives in order")
}

func TestSpeakAllChunksFail(t *testing.T) {
	eng := &fakeEngine{
		fail: func(string) error { return errors.New("dead backend") },
	}
	s := New(eng, Options{MaxChunkSize: 20})

	_, err := s.Speak(context.Background(), Request{Text: "First part here. Second part here.", Speed: 1})
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestSpeakFiltersSilentFragments(t *testing.T) {
	eng := &fakeEngine{
		render: func(chunk string) []engine.Fragment {
			return []engine.Fragment{
				{Graphemes: "silent", Audio: nil},
				{Graphemes: chunk, Audio: audio.NewAudio([]float32{0.5, 0.5})},
				{Graphemes: "silent too", Audio: nil},
			}
		},
	}
	s := New(eng, Options{})

	a, err := s.Speak(context.Background(), Request{Text: "Some text.", Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, a.Samples)
}

func TestSpeakProgressCallback(t *testing.T) {
	eng := &fakeEngine{}
	s := New(eng, Options{MaxChunkSize: 20, MaxConcurrent: 2})

	var mu sync.Mutex
	var dones []int
	total := 0
	req := Request{
		Text:  "First part here. Second part here. Third part here.",
		Speed: 1,
		Progress: func(done, n int) {
			mu.Lock()
			dones = append(dones, done)
			total = n
			mu.Unlock()
		},
	}
	_, err := s.Speak(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, dones)
	assert.Equal(t, 3, total)
}

func TestSpeakContextCancelled(t *testing.T) {
	eng := &fakeEngine{
		delay: func(string) time.Duration { return time.Second },
	}
	s := New(eng, Options{MaxChunkSize: 20})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := s.Speak(ctx, Request{Text: "First part here. Second part here.", Speed: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSpeakWAVEncodesNonContainerEngine(t *testing.T) {
	s := New(&fakeEngine{}, Options{})

	b, err := s.SpeakWAV(context.Background(), Request{Text: "Short text.", Speed: 1})
	require.NoError(t, err)
	require.Greater(t, len(b), 44)
	assert.Equal(t, "RIFF", string(b[:4]))

	decoded, err := audio.DecodeWAV(b)
	require.NoError(t, err)
	assert.Len(t, decoded.Samples, 10)
}

// containerEngine returns pre-encoded WAV bytes per chunk.
type containerEngine struct {
	fakeEngine
	fail map[string]bool
}

func (c *containerEngine) GenerateWAV(ctx context.Context, text, voice string, speed float32) ([]byte, error) {
	if c.fail[text] {
		return nil, fmt.Errorf("chunk rejected: %q", text)
	}
	return tone(text, 5).EncodeWAV(), nil
}

func TestSpeakWAVSplicesContainers(t *testing.T) {
	eng := &containerEngine{}
	s := New(eng, Options{MaxChunkSize: 20})

	b, err := s.SpeakWAV(context.Background(), Request{Text: "First part here. Second part here.", Speed: 1})
	require.NoError(t, err)

	decoded, err := audio.DecodeWAV(b)
	require.NoError(t, err)
	assert.Len(t, decoded.Samples, 10, "two 5-sample containers spliced without overlap")
}

func TestSpeakWAVAllContainersFail(t *testing.T) {
	eng := &containerEngine{fail: map[string]bool{
		"First part here.":  true,
		"Second part here.": true,
	}}
	s := New(eng, Options{MaxChunkSize: 20})

	_, err := s.SpeakWAV(context.Background(), Request{Text: "First part here. Second part here.", Speed: 1})
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestSpeakWAVEmptyText(t *testing.T) {
	s := New(&containerEngine{}, Options{})
	_, err := s.SpeakWAV(context.Background(), Request{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)
}
