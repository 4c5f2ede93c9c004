package assist

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nicsan/crm-extract/internal/model"
)

func strp(s string) *string { return &s }

func TestApply_FillsEmptyFields(t *testing.T) {
	t.Parallel()

	text := "TATA AIG GENERAL INSURANCE COMPANY LIMITED\n" +
		"Policy Issue Date: 21/09/2025\n" +
		"Policy Expiry Date: 20/09/2026\n" +
		"Net Premium ₹15,432\n" +
		"IDV ₹3,80,000\n" +
		"Make / Model / Variant : MARUTI / SWIFT / VXI\n" +
		"Fuel Type: Petrol\n"

	out := Apply(text, model.NewPolicyExtract())

	assert.Equal(t, "TATA AIG GENERAL INSURANCE COMPANY LIMITED", out.Insurer.Or(""))
	assert.Equal(t, 0.95, out.Insurer.Confidence)
	assert.Equal(t, "2025-09-21", out.IssueDate.Or(""))
	assert.Equal(t, "2026-09-20", out.ExpiryDate.Or(""))
	assert.Equal(t, 15432.0, out.TotalPremium.Or(0))
	assert.Equal(t, model.SourceText, out.TotalPremium.Source)
	assert.Equal(t, 380000.0, out.IDV.Or(0))
	assert.Equal(t, "MARUTI", out.Make.Or(""))
	assert.Equal(t, "SWIFT", out.Model.Or(""))
	assert.Equal(t, "VXI", out.Variant.Or(""))
	assert.Equal(t, 0.80, out.Variant.Confidence)
	assert.Equal(t, "PETROL", out.FuelType.Or(""))
}

func TestApply_SourceMonotonicity(t *testing.T) {
	t.Parallel()

	text := "Policy Issue Date: 21/09/2025\nTotal Premium: 18,000\nMake: Hyundai\nModel: Creta"

	rec := model.NewPolicyExtract()
	rec.IssueDate = model.Text("2024-01-01", 0.9)
	rec.TotalPremium = model.Manual(17000.0)
	rec.Make = model.Text("HONDA", 0.85)
	rec.Model = model.Text("CITY", 0.85)

	out := Apply(text, rec)
	assert.Equal(t, rec.IssueDate, out.IssueDate)
	assert.Equal(t, rec.TotalPremium, out.TotalPremium)
	assert.Equal(t, rec.Make, out.Make)
	assert.Equal(t, rec.Model, out.Model)
}

func TestApply_UpgradesModelGuesses(t *testing.T) {
	t.Parallel()

	rec := model.NewPolicyExtract()
	rec.IssueDate = model.LLM(strp("2024-01-01"), 0.9)
	v := 9999.0
	rec.IDV = model.LLM(&v, 0.85)

	out := Apply("Date of Issue 21 Sep 2025\nInsured Declared Value (IDV): 3,80,000", rec)
	assert.Equal(t, model.Text("2025-09-21", 0.9), out.IssueDate)
	assert.Equal(t, 380000.0, out.IDV.Or(0))
	assert.Equal(t, model.SourceText, out.IDV.Source)
}

func TestApply_SeparateMMVLabels(t *testing.T) {
	t.Parallel()

	out := Apply("Make: Hyundai\nModel: Creta\nVariant: SX\n", model.NewPolicyExtract())
	assert.Equal(t, "Hyundai", out.Make.Or(""))
	assert.Equal(t, "Creta", out.Model.Or(""))
	assert.Equal(t, "SX", out.Variant.Or(""))
}

func TestApply_SplitsMakeFromModel(t *testing.T) {
	t.Parallel()

	rec := model.NewPolicyExtract()
	rec.Model = model.LLM(strp("VOLKSWAGEN / VIRTUS"), 0.6)

	out := Apply("", rec)
	assert.Equal(t, model.Text("VOLKSWAGEN", 0.9), out.Make)
	assert.Equal(t, model.Text("VIRTUS", 0.9), out.Model)
}

func TestApply_NormalizesModelExpiry(t *testing.T) {
	t.Parallel()

	rec := model.NewPolicyExtract()
	rec.ExpiryDate = model.LLM(strp("20/09/2026"), 0.6)

	out := Apply("", rec)
	assert.Equal(t, model.Text("2026-09-20", 0.9), out.ExpiryDate)
}

func TestApply_NormalizesRawExpiryFromAnySource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		field model.Field[string]
		want  model.Field[string]
	}{
		{name: "manual", field: model.Manual("20/09/2026"), want: model.Manual("2026-09-20")},
		{name: "text", field: model.Text("20-09-2026", 0.8), want: model.Text("2026-09-20", 0.8)},
		{name: "already iso", field: model.Manual("2026-09-20"), want: model.Manual("2026-09-20")},
		{name: "impossible date kept", field: model.Manual("45/13/2026"), want: model.Manual("45/13/2026")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := model.NewPolicyExtract()
			rec.ExpiryDate = tt.field

			out := Apply("", rec)
			assert.Equal(t, tt.want, out.ExpiryDate)
			assert.Equal(t, tt.field, rec.ExpiryDate, "input untouched")
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	rec := model.NewPolicyExtract()
	_ = Apply("Policy Issue Date: 21/09/2025", rec)
	assert.True(t, rec.IssueDate.IsNull())
}
