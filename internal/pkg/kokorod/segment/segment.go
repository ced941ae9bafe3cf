// Package segment breaks arbitrary-length text into bounded chunks for
// per-chunk speech synthesis, preferring natural language boundaries.
package segment

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize keeps chunks inside the phoneme budget of the
// Kokoro family of models.
const DefaultMaxChunkSize = 100

// A tier names one boundary preference. Oversized units fall through to
// the next tier; past the last tier, token packing with a character-level
// cut takes over.
type tier struct {
	split func(string) []string
	sep   string
	trim  func(string) string
}

var tiers = []tier{
	{split: splitParagraphs, sep: "\n\n", trim: strings.TrimSpace},
	{split: splitSentences, sep: " ", trim: strings.TrimSpace},
	{split: splitClauses, sep: ", ", trim: trimClause},
}

// Split divides text into ordered chunks no longer than maxChunkSize,
// splitting at paragraph, then sentence, then clause, then word
// boundaries, and finally at fixed character offsets when a single token
// cannot be kept whole. Empty and whitespace-only input yield nil.
func Split(text string, maxChunkSize int) []string {
	if maxChunkSize < 1 {
		maxChunkSize = 1
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return packAtTier(text, maxChunkSize, 0)
}

// packAtTier greedily accumulates this tier's units into a buffer,
// flushing before the buffer would overflow. A unit that alone exceeds
// the limit is handed to the next tier instead of being flushed whole.
func packAtTier(text string, max, level int) []string {
	if level == len(tiers) {
		return packTokens(text, max)
	}
	t := tiers[level]

	var chunks []string
	var buf string
	flush := func() {
		if c := t.trim(buf); c != "" {
			chunks = append(chunks, c)
		}
		buf = ""
	}

	for _, unit := range t.split(text) {
		if len(buf)+len(unit) <= max {
			buf += unit + t.sep
			continue
		}
		flush()
		if len(unit) > max {
			chunks = append(chunks, packAtTier(unit, max, level+1)...)
		} else {
			buf = unit + t.sep
		}
	}
	flush()
	return chunks
}

func splitParagraphs(text string) []string {
	return strings.Split(text, "\n\n")
}

var sentenceEnd = regexp.MustCompile(`([.!?])\s+`)

// splitSentences cuts after terminal punctuation followed by whitespace,
// keeping the punctuation with its sentence.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, text[last:m[3]])
		last = m[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	return out
}

func splitClauses(text string) []string {
	return strings.Split(text, ", ")
}

func trimClause(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ", ")
}

var tokenRe = regexp.MustCompile(`\S+\s*`)

// packTokens packs whitespace-delimited tokens, cutting a token at fixed
// widths only when it alone cannot fit. Cuts never land inside a rune,
// so scripts without word spacing stay valid UTF-8.
func packTokens(text string, max int) []string {
	var chunks []string
	var buf string

	for _, tok := range tokenRe.FindAllString(text, -1) {
		if len(buf)+len(tok) <= max {
			buf += tok
			continue
		}
		if c := strings.TrimSpace(buf); c != "" {
			chunks = append(chunks, c)
		}
		buf = ""
		if len(tok) <= max {
			buf = tok
			continue
		}
		for start := 0; start < len(tok); {
			end := cutAt(tok, start, max)
			if part := strings.TrimSpace(tok[start:end]); part != "" {
				chunks = append(chunks, part)
			}
			start = end
		}
	}

	if c := strings.TrimSpace(buf); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// cutAt returns the end offset for a slice of s starting at start that
// holds at most max bytes, backed up to the nearest rune boundary. A
// rune wider than max is taken whole rather than torn.
func cutAt(s string, start, max int) int {
	end := start + max
	if end >= len(s) {
		return len(s)
	}
	for end > start && !utf8.RuneStart(s[end]) {
		end--
	}
	if end == start {
		_, n := utf8.DecodeRuneInString(s[start:])
		end = start + n
	}
	return end
}
