// Package window cuts a document down to the anchor-centred slices most
// likely to hold policy fields, bounding what is sent to the model.
package window

import (
	"regexp"
	"strings"

	"github.com/nicsan/crm-extract/internal/textsource"
)

// Separator joins windows in the output.
const Separator = "\n\n---\n\n"

// Options controls window geometry. All lengths are in runes.
type Options struct {
	Lead        int
	Tail        int
	MaxLen      int
	FallbackLen int
}

// DefaultOptions returns the production window geometry.
func DefaultOptions() Options {
	return Options{Lead: 800, Tail: 2200, MaxLen: 8000, FallbackLen: 4000}
}

var anchors = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Vehicle Details`),
	regexp.MustCompile(`(?i)YOUR VEHICLE IDV`),
	regexp.MustCompile(`(?i)Insured Declared Value.*IDV`),
	regexp.MustCompile(`(?i)Schedule of Premium`),
	regexp.MustCompile(`(?i)Premium`),
	regexp.MustCompile(`(?i)Policy No`),
	regexp.MustCompile(`(?i)Registration No`),
}

// Build returns the windowed text using DefaultOptions.
func Build(fullText string) string {
	return DefaultOptions().Build(fullText)
}

// Build slices text around the first match of each anchor, drops exact
// duplicates and caps the result at MaxLen runes. With no anchor match it
// returns the first FallbackLen runes.
func (o Options) Build(fullText string) string {
	text := []rune(textsource.Normalize(fullText))
	s := string(text)

	var chunks []string
	seen := make(map[string]bool)
	for _, re := range anchors {
		loc := re.FindStringIndex(s)
		if loc == nil {
			continue
		}
		idx := runeIndex(s, loc[0])
		start := max(0, idx-o.Lead)
		end := min(len(text), idx+o.Tail)
		chunk := string(text[start:end])
		if seen[chunk] {
			continue
		}
		seen[chunk] = true
		chunks = append(chunks, chunk)
	}

	if len(chunks) == 0 {
		return truncate(text, o.FallbackLen)
	}
	return truncate([]rune(strings.Join(chunks, Separator)), o.MaxLen)
}

// runeIndex converts a byte offset in s to a rune offset.
func runeIndex(s string, byteOff int) int {
	return len([]rune(s[:byteOff]))
}

func truncate(r []rune, n int) string {
	if len(r) > n {
		return string(r[:n])
	}
	return string(r)
}
