// Package assist derives policy fields from document text with ordered,
// label-anchored regex rules. It fills fields the model left empty and
// upgrades model guesses, but never overrides text or manual values.
package assist

import (
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/model"
)

const (
	dateConfidence    = 0.9
	moneyConfidence   = 0.9
	insurerConfidence = 0.95
	makeConfidence    = 0.85
	variantConfidence = 0.80
	splitConfidence   = 0.9
)

var rawDateRe = regexp.MustCompile(`^\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}$`)

// Apply runs every rule against the full document text using the embedded
// catalog. It is total: fields it cannot derive are returned untouched.
func Apply(text string, rec model.PolicyExtract) model.PolicyExtract {
	return DefaultCatalog().Apply(text, rec)
}

// Apply runs every rule against text using this catalog.
func (c *Catalog) Apply(text string, rec model.PolicyExtract) model.PolicyExtract {
	out := rec

	out.IssueDate = upgradeText(out.IssueDate, "issue_date", issueDateRules, text, dateConfidence)
	out.ExpiryDate = upgradeText(out.ExpiryDate, "expiry_date", expiryDateRules, text, dateConfidence)
	out.IDV = upgradeMoney(out.IDV, "idv", idvRules, text)
	out.TotalPremium = upgradeMoney(out.TotalPremium, "total_premium", totalPremiumRules, text)

	if ins, ok := c.MatchInsurer(text); ok && out.Insurer.CanUpgradeTo(model.SourceText) {
		out.Insurer = model.Text(ins.Name, insurerConfidence)
	}

	c.applyMMV(text, &out)
	out.FuelType = upgradeText(out.FuelType, "fuel_type", fuelTypeRules, text, makeConfidence)
	if rec.Model.Upgradable() {
		c.splitMakeFromModel(&out)
	}

	out.ExpiryDate = normalizeRawDate(out.ExpiryDate)
	return out
}

// normalizeRawDate converts a dd/mm/yyyy value left over after the rules
// ran. A model value becomes text-sourced; other sources keep provenance.
func normalizeRawDate(f model.Field[string]) model.Field[string] {
	v, ok := f.Get()
	if !ok || !rawDateRe.MatchString(v) {
		return f
	}
	iso, ok := ToISO(v)
	if !ok {
		return f
	}
	if f.Source == model.SourceLLM {
		return model.Text(iso, max(f.Confidence, dateConfidence))
	}
	f.Value = &iso
	return f
}

func upgradeText(f model.Field[string], field string, rules []Rule, text string, conf float64) model.Field[string] {
	if !f.CanUpgradeTo(model.SourceText) {
		return f
	}
	v, rule, ok := First(rules, text)
	if !ok {
		return f
	}
	zap.L().Debug("assist: rule matched", zap.String("field", field), zap.String("rule", rule))
	return model.Text(v, conf)
}

func upgradeMoney(f model.Field[float64], field string, rules []Rule, text string) model.Field[float64] {
	if !f.CanUpgradeTo(model.SourceText) {
		return f
	}
	v, rule, ok := First(rules, text)
	if !ok {
		return f
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return f
	}
	zap.L().Debug("assist: rule matched", zap.String("field", field), zap.String("rule", rule))
	return model.Text(n, moneyConfidence)
}

func setText(f *model.Field[string], v string, conf float64) {
	if v != "" && f.CanUpgradeTo(model.SourceText) {
		*f = model.Text(v, conf)
	}
}

// applyMMV reads make, model and variant from a combined
// "Make / Model / Variant" line first, then from separate labels.
func (c *Catalog) applyMMV(text string, out *model.PolicyExtract) {
	if m := mmvLineRe.FindStringSubmatch(text); m != nil {
		parts := c.splitMMV(m[1])
		if len(parts) > 0 && c.looksLikeMake(parts[0]) {
			setText(&out.Make, parts[0], makeConfidence)
		}
		if len(parts) > 1 {
			setText(&out.Model, parts[1], makeConfidence)
		}
		if len(parts) > 2 {
			setText(&out.Variant, parts[2], variantConfidence)
		}
	}

	if m := makeRe.FindStringSubmatch(text); m != nil {
		if v := cleanToken(firstNonEmpty(m[1], m[2])); c.looksLikeMake(v) {
			setText(&out.Make, v, makeConfidence)
		}
	}
	if m := modelRe.FindStringSubmatch(text); m != nil {
		if v := cleanToken(firstNonEmpty(m[1], m[2])); c.looksLikeModelOrVariant(v) {
			setText(&out.Model, v, makeConfidence)
		}
	}
	if m := variantRe.FindStringSubmatch(text); m != nil {
		if v := cleanToken(firstNonEmpty(m[1], m[2])); c.looksLikeModelOrVariant(v) {
			setText(&out.Variant, v, variantConfidence)
		}
	}
}

// splitMakeFromModel moves a make embedded in the model value into its own
// field when make is still empty or a model guess.
func (c *Catalog) splitMakeFromModel(out *model.PolicyExtract) {
	if !out.Make.CanUpgradeTo(model.SourceText) {
		return
	}
	mdl, ok := out.Model.Get()
	if !ok {
		return
	}
	mk, rest, ok := c.splitMake(mdl)
	if !ok {
		return
	}
	out.Make = model.Text(mk, splitConfidence)
	out.Model = model.Text(rest, splitConfidence)
}
