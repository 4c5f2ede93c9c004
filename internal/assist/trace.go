package assist

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type marker struct {
	tag     string
	label   *regexp.Regexp
	context int
}

var markers = []marker{
	{"mmv_line", regexp.MustCompile(`(?i)Make\s*/\s*Model\s*/\s*Variant`), 2},
	{"mmv_make", regexp.MustCompile(`(?i)\bMake\b`), 1},
	{"mmv_model", regexp.MustCompile(`(?i)\bModel\b`), 1},
	{"mmv_variant", regexp.MustCompile(`(?i)\bVariant\b`), 1},
	{"date_labeled", regexp.MustCompile(`(?i)Policy\s*Issue\s*Date|Date\s*of\s*Issue|Start\s*Date|Commencement\s*Date`), 2},
	{"date_from_to", regexp.MustCompile(`(?i)\bFrom\b.*\bTo\b`), 2},
}

// Trace logs the lines surrounding each make/model and date label at debug
// level so rule misses can be diagnosed against real documents.
func Trace(text string) {
	log := zap.L().With(zap.String("component", "assist.trace"))
	if !log.Core().Enabled(zap.DebugLevel) {
		return
	}
	log.Debug("assist: text length", zap.Int("chars", len(text)))

	lines := strings.Split(text, "\n")
	for _, p := range markers {
		for i, l := range lines {
			if !p.label.MatchString(l) {
				continue
			}
			start := max(0, i-p.context)
			end := min(len(lines), i+p.context+1)
			log.Debug("assist: label context",
				zap.String("tag", p.tag),
				zap.Int("line", i+1),
				zap.String("block", strings.Join(lines[start:end], "\n")),
			)
		}
	}
}
