package assist

import (
	"regexp"
	"strings"
)

var (
	leadingSlashRe  = regexp.MustCompile(`^\s*/\s*`)
	trailingSlashRe = regexp.MustCompile(`\s*/\s*$`)
	multiSpaceRe    = regexp.MustCompile(`\s{2,}`)
	alnumRe         = regexp.MustCompile(`[a-zA-Z0-9]`)
	vowelOrDigitRe  = regexp.MustCompile(`[aeiouAEIOU0-9]`)
	makeSepRe       = regexp.MustCompile(`^[\s/\-:]+`)
)

func cleanToken(s string) string {
	s = leadingSlashRe.ReplaceAllString(s, "")
	s = trailingSlashRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func (c *Catalog) hasBadPhrase(s string) bool {
	t := strings.ToLower(s)
	for _, p := range c.BadPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

func (c *Catalog) looksLikeMake(s string) bool {
	if len(s) < 2 || len(s) > 40 || c.hasBadPhrase(s) {
		return false
	}
	return alnumRe.MatchString(s) && vowelOrDigitRe.MatchString(s)
}

func (c *Catalog) looksLikeModelOrVariant(s string) bool {
	if s == "" || s == "/" || len(s) > 40 || c.hasBadPhrase(s) {
		return false
	}
	return alnumRe.MatchString(s)
}

// firstNonEmpty returns the first candidate that is not blank or a bare separator.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c != "" && c != "/" && c != "-" {
			return c
		}
	}
	return ""
}

// splitMMV splits a combined "Make / Model / Variant" value into plausible tokens.
func (c *Catalog) splitMMV(raw string) []string {
	var parts []string
	for _, p := range strings.Split(raw, "/") {
		if p = cleanToken(p); c.looksLikeModelOrVariant(p) {
			parts = append(parts, p)
		}
	}
	return parts
}

// splitMake separates a make from a model value such as "VOLKSWAGEN / VIRTUS"
// or "MARUTI SUZUKI SWIFT".
func (c *Catalog) splitMake(model string) (mk, rest string, ok bool) {
	raw := strings.TrimSpace(model)
	if strings.Contains(raw, "/") {
		var parts []string
		for _, p := range strings.Split(raw, "/") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) < 2 || !c.looksLikeMake(parts[0]) {
			return "", "", false
		}
		return parts[0], strings.Join(parts[1:], " / "), true
	}

	upper := strings.ToUpper(raw)
	for _, known := range c.KnownMakes {
		if !strings.HasPrefix(upper, known) {
			continue
		}
		rest = strings.TrimSpace(makeSepRe.ReplaceAllString(raw[len(known):], ""))
		if rest == "" {
			return "", "", false
		}
		return known, rest, true
	}
	return "", "", false
}
