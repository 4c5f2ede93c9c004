package assist

import (
	"regexp"
	"strings"
)

// Rule derives one candidate value from document text. Find must be pure.
type Rule struct {
	Name string
	Find func(text string) (string, bool)
}

// First runs rules in order and returns the first candidate along with the
// name of the rule that produced it.
func First(rules []Rule, text string) (value, rule string, ok bool) {
	for _, r := range rules {
		if v, ok := r.Find(text); ok && v != "" {
			return v, r.Name, true
		}
	}
	return "", "", false
}

var (
	issueLabeledRe = regexp.MustCompile(`(?i)\b(?:Policy\s*Issue\s*Date|Date\s*of\s*Issue|Commencement\s*Date|Policy\s*Start\s*Date|Start\s*Date)\b[^0-9A-Za-z]{0,10}([0-9]{1,2}[/\-.\s][A-Za-z]{3,9}[/\-.\s][0-9]{2,4}|[0-9]{1,2}[/\-.\s][0-9]{1,2}[/\-.\s][0-9]{2,4}|[0-9]{1,2}\s+[A-Za-z]{3,9}\s+[0-9]{2,4})`)
	issueFromToRe  = regexp.MustCompile(`(?i)\b(?:Period\s+of\s+Insurance|Policy\s*Period)?[^A-Za-z0-9]{0,10}\bFrom\b[^0-9A-Za-z]{0,10}([0-9]{1,2}[/\-.\s][A-Za-z]{3,9}|[0-9]{1,2}[/\-.\s][0-9]{1,2})[/\-.\s]([0-9]{2,4}|[A-Za-z]{3,9})[^0-9A-Za-z]{0,30}\bTo\b[^0-9A-Za-z]{0,10}([0-9]{1,2}[/\-.\s][A-Za-z]{3,9}|[0-9]{1,2}[/\-.\s][0-9]{1,2})[/\-.\s]([0-9]{2,4}|[A-Za-z]{3,9})`)
	issuePeriodRe  = regexp.MustCompile(`(?i)\b(?:Period\s*(?:of\s*Insurance)?|Policy\s*Period)\b[^0-9A-Za-z]{0,10}([0-9]{1,2}[/\-.\s][0-9]{1,2}[/\-.\s][0-9]{2,4})[^0-9A-Za-z]{0,10}\bto\b[^0-9A-Za-z]{0,10}([0-9]{1,2}[/\-.\s][0-9]{1,2}[/\-.\s][0-9]{2,4})`)
	validFromRe    = regexp.MustCompile(`(?i)\bValid\s*From\b`)
	expiryLabelRe  = regexp.MustCompile(`(?i)\b(?:Policy\s*Expiry|Expiry\s*Date|End\s*Date)\b[^0-9]{0,20}(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`)
	coverageHdrRe  = regexp.MustCompile(`(?i)Coverage\s*Details[\s\S]{0,150}?Valid\s*From[\s\S]{0,80}?Valid\s*Till`)
	coverageLineRe = regexp.MustCompile(`(?i)^coverage\s*details$`)
	validFromAnyRe = regexp.MustCompile(`(?i)valid\s*from`)
	validTillAnyRe = regexp.MustCompile(`(?i)valid\s*till`)
	ownDamageRe    = regexp.MustCompile(`(?i)own\s*damage\s*cover`)
	dateAnyRe      = regexp.MustCompile(`(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})`)
	dateWordRe     = regexp.MustCompile(`\b(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})\b`)
	lineSplitRe    = regexp.MustCompile(`\r?\n`)

	idvRe          = regexp.MustCompile(`(?i)\b(?:Insured\s*Declared\s*Value|IDV)\b[^0-9]{0,20}([0-9][0-9,]{4,})`)
	totalPremiumRe = regexp.MustCompile(`(?i)\b(?:Total\s+Premium|Final\s*/?\s*Gross\s*Premium)\b[^0-9]{0,20}([0-9][0-9,]{2,})`)
	netPremiumRe   = regexp.MustCompile(`(?i)\bNet\s*Premium\b[^0-9]{0,20}([0-9][0-9,]{2,})`)

	mmvLineRe  = regexp.MustCompile(`(?i)Make\s*/\s*Model\s*/\s*Variant\s*[:\-]?\s*([^\r\n]+)`)
	makeRe     = regexp.MustCompile(`(?i)\bMake\s*[:\-]?[^\S\r\n]*([^\r\n]*)\r?\n?([^\r\n]*)`)
	modelRe    = regexp.MustCompile(`(?i)\bModel\s*[:\-]?[^\S\r\n]*([^\r\n]*)\r?\n?([^\r\n]*)`)
	variantRe  = regexp.MustCompile(`(?i)\bVariant\s*[:\-]?[^\S\r\n]*([^\r\n]*)\r?\n?([^\r\n]*)`)
	fuelTypeRe = regexp.MustCompile(`(?i)\bFuel\s*Type\s*[:\-]?\s*([A-Za-z0-9 /-]{2,20})`)
)

// isoFrom wraps a single-capture date pattern into a rule finder.
func isoFrom(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return ToISO(m[1])
	}
}

func digitsFrom(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		d := onlyDigits(m[1])
		return d, d != ""
	}
}

var issueDateRules = []Rule{
	{Name: "issue_labeled", Find: isoFrom(issueLabeledRe)},
	{Name: "issue_from_to", Find: func(text string) (string, bool) {
		m := issueFromToRe.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return ToISO(m[1] + " " + m[2])
	}},
	{Name: "issue_period_to", Find: isoFrom(issuePeriodRe)},
	{Name: "valid_from_near", Find: func(text string) (string, bool) {
		raw, ok := dateNear(validFromRe, text, 160)
		if !ok {
			return "", false
		}
		return ToISO(raw)
	}},
	{Name: "coverage_table_walk", Find: func(text string) (string, bool) {
		raw, ok := coverageTableStart(text)
		if !ok {
			return "", false
		}
		return ToISO(raw)
	}},
}

var expiryDateRules = []Rule{
	{Name: "expiry_labeled", Find: isoFrom(expiryLabelRe)},
	{Name: "coverage_second_date", Find: func(text string) (string, bool) {
		loc := coverageHdrRe.FindStringIndex(text)
		if loc == nil {
			return "", false
		}
		end := min(len(text), loc[0]+6000)
		dates := dateWordRe.FindAllStringSubmatch(text[loc[0]:end], 2)
		if len(dates) < 2 {
			return "", false
		}
		return ToISO(dates[1][1])
	}},
}

var idvRules = []Rule{
	{Name: "idv_labeled", Find: digitsFrom(idvRe)},
}

var totalPremiumRules = []Rule{
	{Name: "total_premium_primary", Find: digitsFrom(totalPremiumRe)},
	{Name: "net_premium", Find: digitsFrom(netPremiumRe)},
}

var fuelTypeRules = []Rule{
	{Name: "fuel_type_labeled", Find: func(text string) (string, bool) {
		m := fuelTypeRe.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		v := strings.ToUpper(strings.TrimSpace(m[1]))
		return v, v != ""
	}},
}

// dateNear returns the first numeric date within lookahead bytes after label.
func dateNear(label *regexp.Regexp, text string, lookahead int) (string, bool) {
	loc := label.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	end := min(len(text), loc[1]+lookahead)
	m := dateAnyRe.FindStringSubmatch(text[loc[1]:end])
	if m == nil {
		return "", false
	}
	return m[1], true
}

// coverageTableStart walks the line-oriented "Coverage Details" table and
// returns the first start date. An "Own Damage Cover" row carries its dates on
// the following lines.
func coverageTableStart(text string) (string, bool) {
	var lines []string
	for _, l := range lineSplitRe.Split(text, -1) {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	header := -1
	for i, l := range lines {
		if !coverageLineRe.MatchString(l) {
			continue
		}
		block := strings.Join(lines[i:min(len(lines), i+5)], " ")
		if validFromAnyRe.MatchString(block) && validTillAnyRe.MatchString(block) {
			header = i
			break
		}
	}
	if header < 0 {
		return "", false
	}

	for i := header + 1; i < min(len(lines), header+80); i++ {
		if validFromAnyRe.MatchString(lines[i]) || validTillAnyRe.MatchString(lines[i]) {
			continue
		}
		if ownDamageRe.MatchString(lines[i]) {
			for j := i + 1; j < min(len(lines), i+6); j++ {
				if m := dateAnyRe.FindStringSubmatch(lines[j]); m != nil {
					return m[1], true
				}
			}
		}
		if m := dateAnyRe.FindStringSubmatch(lines[i]); m != nil {
			return m[1], true
		}
	}
	return "", false
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
