// Package gate is the final hallucination guard. Every gated field is either
// re-derived from the raw document text or cleared when its value does not
// literally appear there.
package gate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/assist"
	"github.com/nicsan/crm-extract/internal/model"
)

// NoteEvidence marks a field cleared because its value was not in the text.
const NoteEvidence = "evidence_gate"

const textConfidence = 0.9

const dateAlt = `([0-9]{4}-[0-9]{2}-[0-9]{2}|[0-9]{2}/[0-9]{2}/[0-9]{4}|[0-9]{1,2}[^\S\r\n]?[A-Z]{3}[^\S\r\n]?[0-9]{2,4})`

var (
	policyRe  = regexp.MustCompile(`(?i)policy\s*(no\.?|number)\s*[:\-]?\s*([A-Z0-9\-/]+)`)
	regnRe    = regexp.MustCompile(`(?i)(registration|regn)\s*(no\.?|number)\s*[:\-]?\s*([A-Z]{2}\s*\d{1,2}\s*[A-Z]{1,2}\s*\d{3,4})`)
	idvRe     = regexp.MustCompile(`(?i)\b(IDV|Insured\s*Declared\s*Value)\b[\s:₹]*([0-9][0-9,.]*)`)
	premiumRe = regexp.MustCompile(`(?i)(total|gross|final)\s*(premium|payable)\s*[:\-]?\s*(₹?\s*[0-9][0-9,.]*)`)
	issueRe   = regexp.MustCompile(`(?i)(issue|issued)\s*(date)?\s*[:\-]?\s*` + dateAlt)
	expiryRe  = regexp.MustCompile(`(?i)(expiry|valid\s*up\s*to|to)\s*(date)?\s*[:\-]?\s*` + dateAlt)
	isoRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Harden re-derives and prunes the gated fields of rec against text. It is
// pure, total and idempotent: Harden(Harden(r, t), t) == Harden(r, t).
//
// Presence is checked on a compacted, upper-cased copy of text. Money is
// matched on its digits. Dates are stored as YYYY-MM-DD, so an ISO date
// counts as present when any of its day-first renderings (15/03/2024,
// 15-Mar-2024, 15 March 2024 and so on) occurs in text; the ISO string
// itself need not appear.
func Harden(rec model.PolicyExtract, text string) model.PolicyExtract {
	out := rec

	if m := policyRe.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[2]); v != "" {
			out.PolicyNumber = model.Text(v, textConfidence)
		}
	}
	if m := regnRe.FindStringSubmatch(text); m != nil {
		out.VehicleNumber = model.Text(compact(m[3]), textConfidence)
	}
	if m := idvRe.FindStringSubmatch(text); m != nil {
		if v, ok := canonicalMoney(m[2]); ok {
			out.IDV = model.Text(v, textConfidence)
		}
	}
	if m := premiumRe.FindStringSubmatch(text); m != nil {
		if v, ok := canonicalMoney(m[3]); ok {
			out.TotalPremium = model.Text(v, textConfidence)
		}
	}
	if m := issueRe.FindStringSubmatch(text); m != nil {
		if v, ok := canonicalDate(m[3]); ok {
			out.IssueDate = model.Text(v, textConfidence)
		}
	}
	if m := expiryRe.FindStringSubmatch(text); m != nil {
		if v, ok := canonicalDate(m[3]); ok {
			out.ExpiryDate = model.Text(v, textConfidence)
		}
	}

	ev := newEvidence(text)
	out.PolicyNumber = keep(out.PolicyNumber, "policy_number", ev.hasText)
	out.VehicleNumber = keep(out.VehicleNumber, "vehicle_number", ev.hasText)
	out.IssueDate = keep(out.IssueDate, "issue_date", ev.hasDate)
	out.ExpiryDate = keep(out.ExpiryDate, "expiry_date", ev.hasDate)
	out.TotalPremium = keep(out.TotalPremium, "total_premium", ev.hasMoney)
	out.IDV = keep(out.IDV, "idv", ev.hasMoney)
	return out
}

func keep[T any](f model.Field[T], name string, present func(T) bool) model.Field[T] {
	v, ok := f.Get()
	if !ok {
		return model.Field[T]{Source: model.SourceNone, Note: f.Note}
	}
	if present(v) {
		return f
	}
	zap.L().Debug("gate: evidence violation",
		zap.String("field", name),
		zap.Any("value", v),
		zap.String("source", string(f.Source)),
	)
	return model.Nulled[T](NoteEvidence)
}

// compact uppercases s and drops whitespace and hyphens.
func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// canonicalMoney strips currency glyphs and separators, keeping any decimal tail.
func canonicalMoney(raw string) (float64, bool) {
	s := strings.Map(func(r rune) rune {
		if r == ',' || r == '₹' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	s = strings.TrimRight(s, ".")
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// canonicalDate returns raw as YYYY-MM-DD or reports that it cannot be read.
func canonicalDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if isoRe.MatchString(raw) {
		return raw, true
	}
	return assist.ToISO(raw)
}

type evidence struct {
	hay    string
	digits string
}

func newEvidence(text string) evidence {
	hay := compact(text)
	return evidence{
		hay:    hay,
		digits: strings.NewReplacer(",", "", ".", "").Replace(hay),
	}
}

func (e evidence) hasText(v string) bool {
	needle := compact(v)
	return needle != "" && strings.Contains(e.hay, needle)
}

func (e evidence) hasMoney(v float64) bool {
	needle := strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", "")
	return strings.Contains(e.digits, needle)
}

func (e evidence) hasDate(iso string) bool {
	for _, r := range dateRenderings(iso) {
		if strings.Contains(e.hay, compact(r)) {
			return true
		}
	}
	return false
}

var monthNames = [...]string{"JANUARY", "FEBRUARY", "MARCH", "APRIL", "MAY", "JUNE", "JULY", "AUGUST", "SEPTEMBER", "OCTOBER", "NOVEMBER", "DECEMBER"}

// dateRenderings lists the textual forms an ISO date may take in a document.
// A value that is not ISO is only matched verbatim.
func dateRenderings(iso string) []string {
	if !isoRe.MatchString(iso) {
		return []string{iso}
	}
	y, m, d := iso[0:4], iso[5:7], iso[8:10]
	mi, _ := strconv.Atoi(m)
	if mi < 1 || mi > 12 {
		return []string{iso}
	}

	days := []string{d}
	if d[0] == '0' {
		days = append(days, d[1:])
	}
	nums := []string{m}
	if m[0] == '0' {
		nums = append(nums, m[1:])
	}
	names := []string{monthNames[mi-1][:3], monthNames[mi-1]}
	if mi == 9 {
		names = append(names, "SEPT")
	}
	years := []string{y, y[2:]}

	out := []string{iso}
	for _, dd := range days {
		for _, yy := range years {
			for _, mm := range nums {
				for _, sep := range []string{"/", "-", "."} {
					out = append(out, dd+sep+mm+sep+yy)
				}
			}
			for _, name := range names {
				out = append(out, dd+name+yy)
			}
		}
	}
	return out
}
