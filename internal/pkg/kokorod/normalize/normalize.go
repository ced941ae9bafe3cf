// Package normalize cleans raw request text before segmentation.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceRe     = regexp.MustCompile(`[ \t]+`)
	paragraphRe = regexp.MustCompile(`\n{3,}`)
	lineRe      = regexp.MustCompile(` *\n *`)
)

var replacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
	"«", `"`, "»", `"`,
	"—", ", ", "–", ", ",
	"…", "...",
	"\r\n", "\n", "\r", "\n",
)

// Clean applies NFC normalization, replaces typographic quotes and
// dashes with their spoken-friendly ASCII forms, and collapses runs of
// whitespace. Blank-line paragraph breaks are preserved because the
// segmenter keys on them.
func Clean(text string) string {
	text = norm.NFC.String(text)
	text = replacer.Replace(text)
	text = spaceRe.ReplaceAllString(text, " ")
	text = lineRe.ReplaceAllString(text, "\n")
	text = paragraphRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
