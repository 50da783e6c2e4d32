package extract

import (
	"regexp"
	"strings"
)

var (
	reSentenceJoin = regexp.MustCompile(`\.([A-Z])`)
	reCommaJoin    = regexp.MustCompile(`,([A-Za-z])`)
	reCaseJoin     = regexp.MustCompile(`([a-z])([A-Z])`)
	reHorizontalWS = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	reLineEdgeWS   = regexp.MustCompile(` ?\n ?`)
	reBlankLines   = regexp.MustCompile(`\n{3,}`)
)

// Normalize repairs spacing lost by extraction backends: words joined at
// sentence, comma and lower-to-upper case boundaries are split, runs of
// horizontal whitespace collapse to one space, and three or more line
// breaks collapse to a single blank line.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = reSentenceJoin.ReplaceAllString(text, ". $1")
	text = reCommaJoin.ReplaceAllString(text, ", $1")
	text = reCaseJoin.ReplaceAllString(text, "$1 $2")

	text = reHorizontalWS.ReplaceAllString(text, " ")
	text = reLineEdgeWS.ReplaceAllString(text, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
