// Package kokoroexec runs the synthesis model in a child process and
// speaks its stdin/stdout protocol: one JSON request per line, one JSON
// response per line with the WAV payload hex-encoded. The process keeps
// a loaded voice pack, so requests are strictly serialized.
package kokoroexec

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/rs/zerolog/log"

	"kokorod/internal/pkg/kokorod/audio"
	"kokorod/internal/pkg/kokorod/engine"
)

func init() {
	engine.Register("kokoro-exec", NewEngine)
}

type wireRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	LangCode string  `json:"lang_code"`
	Speed    float32 `json:"speed"`
}

type wireResponse struct {
	Success   bool   `json:"success"`
	AudioData string `json:"audio_data"`
	Voice     string `json:"voice"`
	Device    string `json:"device"`
	Error     string `json:"error"`
}

type Engine struct {
	langCode string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  *json.Encoder
	stdinW interface{ Close() error }
	stdout *bufio.Reader
}

func NewEngine(cfg engine.EngineConfig) (engine.Engine, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("kokoroexec: engine command is required")
	}
	args, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("kokoroexec: parse command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("kokoroexec: engine command is empty")
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("kokoroexec: open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("kokoroexec: open stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("kokoroexec: start %q: %w", args[0], err)
	}

	log.Info().Str("command", args[0]).Int("pid", cmd.Process.Pid).Msg("Synthesis process started")
	return &Engine{
		langCode: cfg.LangCode,
		cmd:      cmd,
		stdin:    json.NewEncoder(stdin),
		stdinW:   stdin,
		// Responses carry a whole hex-encoded WAV on one line.
		stdout: bufio.NewReaderSize(stdout, 1<<20),
	}, nil
}

// GenerateWAV round-trips one request through the child process. The
// mutex serializes access because the process mutates its loaded voice
// between requests.
func (e *Engine) GenerateWAV(ctx context.Context, text, voice string, speed float32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := wireRequest{Text: text, Voice: voice, LangCode: e.langCode, Speed: speed}
	if err := e.stdin.Encode(req); err != nil {
		return nil, fmt.Errorf("kokoroexec: write request: %w", err)
	}

	line, err := e.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("kokoroexec: read response: %w", err)
	}

	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("kokoroexec: decode response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("kokoroexec: synthesis failed: %s", resp.Error)
	}

	wav, err := hex.DecodeString(resp.AudioData)
	if err != nil {
		return nil, fmt.Errorf("kokoroexec: decode audio payload: %w", err)
	}
	return wav, nil
}

func (e *Engine) Generate(ctx context.Context, text, voice string, speed float32) ([]engine.Fragment, error) {
	wav, err := e.GenerateWAV(ctx, text, voice, speed)
	if err != nil {
		return nil, err
	}
	a, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("kokoroexec: decode audio: %w", err)
	}
	return []engine.Fragment{{Graphemes: text, Audio: a}}, nil
}

// ListVoices is empty: the wrapped process loads voices on demand and
// has no enumeration call.
func (e *Engine) ListVoices() []string { return nil }

func (e *Engine) Info() engine.EngineInfo {
	return engine.EngineInfo{
		Name:       "kokoro-exec",
		Languages:  []string{"en"},
		SampleRate: audio.SampleRate,
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil {
		return nil
	}
	e.stdinW.Close()
	err := e.cmd.Wait()
	e.cmd = nil
	return err
}
