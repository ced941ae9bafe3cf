package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kokorod/internal/pkg/kokorod/audio"
	"kokorod/internal/pkg/kokorod/engine"
)

func TestGenerate(t *testing.T) {
	eng, err := NewEngine(engine.EngineConfig{})
	require.NoError(t, err)

	fragments, err := eng.Generate(context.Background(), "Hello.", "af_heart", 1.0)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "Hello.", fragments[0].Graphemes)
	require.NotNil(t, fragments[0].Audio)
	assert.Len(t, fragments[0].Audio.Samples, 6*samplesPerChar)
	assert.Equal(t, audio.SampleRate, fragments[0].Audio.SampleRate)
}

func TestGenerateSpeedScalesDuration(t *testing.T) {
	eng, _ := NewEngine(engine.EngineConfig{})

	slow, err := eng.Generate(context.Background(), "Hello.", "af_heart", 0.5)
	require.NoError(t, err)
	fast, err := eng.Generate(context.Background(), "Hello.", "af_heart", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 4*len(fast[0].Audio.Samples), len(slow[0].Audio.Samples))
}

func TestGenerateFragmentPerLine(t *testing.T) {
	eng, _ := NewEngine(engine.EngineConfig{})

	fragments, err := eng.Generate(context.Background(), "one\ntwo\n\nthree", "af_heart", 1.0)
	require.NoError(t, err)
	require.Len(t, fragments, 3)
	assert.Equal(t, "one", fragments[0].Graphemes)
	assert.Equal(t, "three", fragments[2].Graphemes)
}

func TestGenerateEmptyText(t *testing.T) {
	eng, _ := NewEngine(engine.EngineConfig{})
	_, err := eng.Generate(context.Background(), "   ", "af_heart", 1.0)
	assert.Error(t, err)
}

func TestListVoicesCopy(t *testing.T) {
	eng, _ := NewEngine(engine.EngineConfig{})
	got := eng.ListVoices()
	require.Contains(t, got, "af_heart")
	got[0] = "mutated"
	assert.NotContains(t, eng.ListVoices(), "mutated")
}
