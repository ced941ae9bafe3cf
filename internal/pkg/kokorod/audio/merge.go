package audio

import (
	"bytes"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNoAudio is returned when not a single container yielded usable PCM.
var ErrNoAudio = errors.New("audio: no audio chunks were extracted")

// MergeWAV splices already-encoded per-chunk containers into one WAV
// without re-decoding the samples. Each container has its PCM payload
// lifted out past the data marker; a buffer without the RIFF magic is
// taken to be raw PCM that was stripped upstream. A container whose data
// marker cannot be located is skipped with a warning rather than failing
// the whole merge, but a merge that extracts nothing fails with
// ErrNoAudio. The combined payload is padded to an even byte count so
// 16-bit sample alignment survives, then wrapped in a fresh header.
func MergeWAV(containers [][]byte, f Format) ([]byte, error) {
	var pcm []byte
	extracted := 0

	for i, c := range containers {
		payload, err := extractPCM(c)
		if err != nil {
			log.Warn().Int("chunk", i+1).Err(err).Msg("Skipping unmergeable audio chunk")
			continue
		}
		pcm = append(pcm, payload...)
		extracted++
	}

	if extracted == 0 {
		return nil, ErrNoAudio
	}

	if len(pcm)%2 != 0 {
		pcm = append(pcm, 0)
	}

	out := EncodeHeader(f, len(pcm))
	return append(out, pcm...), nil
}

func extractPCM(c []byte) ([]byte, error) {
	if !bytes.HasPrefix(c, []byte("RIFF")) {
		// Already-stripped payload, pass through untouched.
		return c, nil
	}
	pos := bytes.Index(c, []byte("data"))
	if pos < 0 {
		return nil, ErrNoDataChunk
	}
	start := pos + 8 // tag + size field
	if start >= len(c) {
		return nil, errors.New("audio: data chunk has no payload")
	}
	return c[start:], nil
}
