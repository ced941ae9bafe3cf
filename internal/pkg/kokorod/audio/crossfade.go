package audio

import "errors"

// ErrNoBuffers is returned when assembly is asked to stitch zero inputs.
var ErrNoBuffers = errors.New("audio: no buffers to assemble")

// Crossfade joins two waveforms by overlapping the tail of a with the
// head of b under complementary linear gain ramps. The overlap length is
// floor(fadeDuration*sampleRate), capped at the shorter buffer; a zero
// overlap degenerates to plain concatenation. The result always has
// len(a) + len(b) - overlap samples.
func Crossfade(a, b []float32, sampleRate int, fadeDuration float64) []float32 {
	fade := int(fadeDuration * float64(sampleRate))
	if fade < 0 {
		fade = 0
	}
	if fade > len(a) {
		fade = len(a)
	}
	if fade > len(b) {
		fade = len(b)
	}

	out := make([]float32, 0, len(a)+len(b)-fade)
	out = append(out, a[:len(a)-fade]...)

	for i := 0; i < fade; i++ {
		var gainIn float32
		if fade > 1 {
			gainIn = float32(i) / float32(fade-1)
		}
		gainOut := 1 - gainIn
		out = append(out, a[len(a)-fade+i]*gainOut+b[i]*gainIn)
	}

	out = append(out, b[fade:]...)
	return out
}

// Concatenate stitches ordered per-chunk waveforms into one continuous
// buffer, crossfading each seam to mask the decoder state reset between
// independently synthesized chunks. A single buffer is returned as-is.
func Concatenate(buffers [][]float32, sampleRate int, fadeDuration float64) ([]float32, error) {
	if len(buffers) == 0 {
		return nil, ErrNoBuffers
	}
	result := buffers[0]
	for _, next := range buffers[1:] {
		result = Crossfade(result, next, sampleRate, fadeDuration)
	}
	return result, nil
}
