package textsource

import (
	"regexp"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

var zeroWidth = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200B, Hi: 0x200D, Stride: 1},
		{Lo: 0xFEFF, Hi: 0xFEFF, Stride: 1},
	},
}

var multiSpace = regexp.MustCompile(` {2,}`)

// Normalize maps non-breaking spaces to spaces, drops zero-width characters
// and collapses runs of spaces. Newlines are kept.
func Normalize(s string) string {
	// Transformers carry state, so the chain is built per call.
	t := transform.Chain(
		runes.Remove(runes.In(zeroWidth)),
		runes.Map(func(r rune) rune {
			if r == '\u00a0' {
				return ' '
			}
			return r
		}),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return multiSpace.ReplaceAllString(out, " ")
}
