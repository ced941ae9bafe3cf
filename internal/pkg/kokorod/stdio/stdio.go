// Package stdio serves synthesis over the line protocol the original
// wrapper scripts speak: one JSON request per stdin line, one JSON
// response per stdout line carrying the WAV container hex-encoded. This
// lets kokorod slot in underneath a parent process unchanged.
//
// Cancellation is observed between requests. A Serve blocked on a quiet
// stdin returns when the parent closes the pipe, which is how the
// wrapped process has always been shut down.
package stdio

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"

	"github.com/rs/zerolog/log"

	"kokorod/internal/pkg/kokorod/pipeline"
)

type Request struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	LangCode string  `json:"lang_code"`
	Speed    float32 `json:"speed"`
}

type Response struct {
	Success   bool   `json:"success"`
	AudioData string `json:"audio_data,omitempty"`
	Voice     string `json:"voice,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Options struct {
	DefaultVoice string
	DefaultSpeed float32
}

// Serve processes requests line by line until r is exhausted or ctx is
// cancelled. A malformed or failed request answers with success=false
// and the loop keeps going; only transport errors stop it.
func Serve(ctx context.Context, r io.Reader, w io.Writer, synth *pipeline.Synthesizer, opts Options) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := enc.Encode(Response{Success: false, Error: "invalid JSON format"}); werr != nil {
				return werr
			}
			continue
		}

		if req.Voice == "" {
			req.Voice = opts.DefaultVoice
		}
		if req.Speed == 0 {
			req.Speed = opts.DefaultSpeed
		}

		wav, err := synth.SpeakWAV(ctx, pipeline.Request{
			Text:  req.Text,
			Voice: req.Voice,
			Speed: req.Speed,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Request failed")
			if werr := enc.Encode(Response{Success: false, Error: err.Error()}); werr != nil {
				return werr
			}
			continue
		}

		resp := Response{
			Success:   true,
			AudioData: hex.EncodeToString(wav),
			Voice:     req.Voice,
			Message:   "Audio generated successfully",
		}
		if werr := enc.Encode(resp); werr != nil {
			return werr
		}
	}
	return scanner.Err()
}
