package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kokorod/internal/pkg/kokorod/engine"
	"kokorod/internal/pkg/kokorod/pipeline"

	_ "kokorod/internal/pkg/kokorod/backends/mock"
)

func newSynth(t *testing.T) *pipeline.Synthesizer {
	t.Helper()
	eng, err := engine.New("mock", engine.EngineConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return pipeline.New(eng, pipeline.Options{})
}

func serveLines(t *testing.T, lines ...string) []Response {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	err := Serve(context.Background(), in, &out, newSynth(t), Options{
		DefaultVoice: "af_heart",
		DefaultSpeed: 1.0,
	})
	require.NoError(t, err)

	var responses []Response
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for sc.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		responses = append(responses, r)
	}
	require.NoError(t, sc.Err())
	return responses
}

func TestServeSynthesizesRequest(t *testing.T) {
	resps := serveLines(t, `{"text": "Hello there.", "voice": "af_bella", "speed": 1.0}`)
	require.Len(t, resps, 1)

	r := resps[0]
	assert.True(t, r.Success)
	assert.Equal(t, "af_bella", r.Voice)
	assert.Empty(t, r.Error)

	wav, err := hex.DecodeString(r.AudioData)
	require.NoError(t, err)
	require.Greater(t, len(wav), 44)
	assert.Equal(t, "RIFF", string(wav[:4]))
}

func TestServeAppliesDefaults(t *testing.T) {
	resps := serveLines(t, `{"text": "Hi."}`)
	require.Len(t, resps, 1)
	assert.True(t, resps[0].Success)
	assert.Equal(t, "af_heart", resps[0].Voice)
}

func TestServeInvalidJSONContinues(t *testing.T) {
	resps := serveLines(t,
		`this is not json`,
		`{"text": "Still alive."}`,
	)
	require.Len(t, resps, 2)

	assert.False(t, resps[0].Success)
	assert.Equal(t, "invalid JSON format", resps[0].Error)

	assert.True(t, resps[1].Success)
	assert.NotEmpty(t, resps[1].AudioData)
}

func TestServeEmptyTextFailsRequestOnly(t *testing.T) {
	resps := serveLines(t,
		`{"text": ""}`,
		`{"text": "Recovered."}`,
	)
	require.Len(t, resps, 2)
	assert.False(t, resps[0].Success)
	assert.NotEmpty(t, resps[0].Error)
	assert.True(t, resps[1].Success)
}

func TestServeSkipsBlankLines(t *testing.T) {
	resps := serveLines(t,
		``,
		`{"text": "After the blank."}`,
	)
	require.Len(t, resps, 1)
	assert.True(t, resps[0].Success)
}

func TestServeStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	err := Serve(context.Background(), strings.NewReader(""), &out, newSynth(t), Options{})
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}
