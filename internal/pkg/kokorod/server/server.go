// Package server exposes the synthesis pipeline over HTTP: POST /tts
// returns a WAV body, GET /progress/{id} streams progress as
// server-sent events while a request runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"kokorod/internal/pkg/kokorod/engine"
	"kokorod/internal/pkg/kokorod/pipeline"
	"kokorod/internal/pkg/kokorod/progress"
)

var langCodes = map[string]string{
	"a": "American English",
	"b": "British English",
}

type ttsRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float32 `json:"speed"`
	LangCode string  `json:"lang_code"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type Server struct {
	synth        *pipeline.Synthesizer
	eng          engine.Engine
	tracker      *progress.Tracker
	defaultVoice string
	defaultSpeed float32
}

func New(synth *pipeline.Synthesizer, eng engine.Engine, defaultVoice string, defaultSpeed float32) *Server {
	return &Server{
		synth:        synth,
		eng:          eng,
		tracker:      progress.NewTracker(),
		defaultVoice: defaultVoice,
		defaultSpeed: defaultSpeed,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleHealth)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("POST /tts", s.handleTTS)
	mux.HandleFunc("GET /progress/{id}", s.handleProgress)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("HTTP server listening")
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "kokorod is running"})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices := s.eng.ListVoices()
	if voices == nil {
		voices = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":     voices,
		"lang_codes": langCodes,
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return
	}
	if req.Voice == "" {
		req.Voice = s.defaultVoice
	}
	if req.Speed == 0 {
		req.Speed = s.defaultSpeed
	}
	if req.Speed < 0.5 || req.Speed > 2.0 {
		writeError(w, http.StatusBadRequest, errors.New("speed must be between 0.5 and 2.0"))
		return
	}

	id := progress.NewRequestID()
	s.tracker.Update(id, 0, "initializing", "Request accepted")

	wav, err := s.synth.SpeakWAV(r.Context(), pipeline.Request{
		Text:  req.Text,
		Voice: req.Voice,
		Speed: req.Speed,
		Progress: func(done, total int) {
			pct := 10 + done*80/total
			s.tracker.Update(id, pct, "synthesizing", fmt.Sprintf("Synthesized chunk %d/%d", done, total))
		},
	})
	if err != nil {
		s.tracker.Update(id, 0, "error", err.Error())
		switch {
		case errors.Is(err, pipeline.ErrEmptyText):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, context.Canceled):
			// Client went away, nothing to write.
		default:
			log.Error().Err(err).Str("request_id", id).Msg("Synthesis failed")
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}

	s.tracker.Update(id, 100, "completed", "Audio generation completed")

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", "attachment; filename=speech.wav")
	w.Header().Set("X-Request-ID", id)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(wav); err != nil {
		log.Warn().Err(err).Msg("Failed to write audio response")
	}
}

// handleProgress streams snapshots for one request id until it reaches
// 100 percent or the client disconnects.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastPercent := -1
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		update, ok := s.tracker.Get(id)
		if !ok {
			update = progress.Update{Stage: "waiting", Message: "Waiting for progress data..."}
		}
		if update.Percent != lastPercent {
			lastPercent = update.Percent
			payload, _ := json.Marshal(update)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		if lastPercent >= 100 {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Success: false, Error: err.Error()})
}
