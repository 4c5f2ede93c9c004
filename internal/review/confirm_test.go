package review

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/store"
)

func reviewUpload(t *testing.T, st store.Store, rec *model.PolicyExtract) string {
	t.Helper()
	up := model.Upload{DocumentKey: "a.pdf", Status: model.StatusReview}
	if rec != nil {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		up.ExtractedData = data
	}
	created, err := st.CreateUpload(context.Background(), up)
	require.NoError(t, err)
	return created.ID
}

func TestConfirmSave_SchemaPayload(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()
	rec := sampleExtract()
	id := reviewUpload(t, st, &rec)

	body := `{
		"schema_version": "1.0",
		"insurer": {"value": "TATA AIG", "confidence": 1, "source": "manual"},
		"policy_number": {"value": "D217080699", "confidence": 1, "source": "manual"},
		"product_type": "Private Car",
		"vehicle_type": "Four Wheeler",
		"make": {"value": "  "},
		"ncb": "20%",
		"manual_extras": {"broker": "direct"}
	}`

	p, err := NewConfirmer(st).ConfirmSave(ctx, id, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "TATA AIG", p.Insurer)
	assert.Equal(t, "D217080699", p.PolicyNumber, "submitted value wins")
	assert.Equal(t, "TN18BE3785", p.VehicleNumber, "stored value fills the gap")
	assert.Equal(t, "2024-03-15", p.IssueDate)
	assert.InDelta(t, 15432.0, p.TotalPremium, 0.001)
	assert.Equal(t, "MARUTI", p.Make)
	assert.InDelta(t, 20.0, p.NCB, 0.001)
	assert.Equal(t, "direct", p.ManualExtras["broker"])

	up, err := st.GetUpload(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSaved, up.Status)
}

func TestConfirmSave_LegacyEdits(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	rec := sampleExtract()
	id := reviewUpload(t, st, &rec)

	body := `{"edits": {"total_premium": "₹16,000", "idv": 400000, "make": "Hyundai"}}`
	p, err := NewConfirmer(st).ConfirmSave(context.Background(), id, []byte(body))
	require.NoError(t, err)

	assert.InDelta(t, 16000.0, p.TotalPremium, 0.001)
	assert.InDelta(t, 400000.0, p.IDV, 0.001)
	assert.Equal(t, "Hyundai", p.Make)
	assert.Equal(t, "D217080603", p.PolicyNumber)
	assert.Equal(t, "MOTOR", p.ProductType)
	assert.Equal(t, "PRIVATE", p.VehicleType)
}

func TestConfirmSave_EditsOverrideStoredValues(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	rec := sampleExtract()
	id := reviewUpload(t, st, &rec)

	body := `{"edits": {"policy_number": "EDITED123", "total_premium": 99999}, "manual_extras": {"broker": "direct"}}`
	p, err := NewConfirmer(st).ConfirmSave(context.Background(), id, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "EDITED123", p.PolicyNumber)
	assert.InDelta(t, 99999.0, p.TotalPremium, 0.001)
	assert.Equal(t, "TN18BE3785", p.VehicleNumber)
	assert.Equal(t, "direct", p.ManualExtras["broker"])
}

func TestConfirmSave_FieldErrors(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	id := reviewUpload(t, st, nil)

	body := `{"schema_version": "1.0", "issue_date": "15/03/2024", "ncb": 150}`
	_, err := NewConfirmer(st).ConfirmSave(context.Background(), id, []byte(body))
	require.Error(t, err)

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	fields := map[string]bool{}
	for _, v := range ve.Violations {
		fields[v.Field] = true
	}
	for _, f := range []string{"insurer", "policy_number", "vehicle_number", "expiry_date", "total_premium", "idv", "issue_date.value", "product_type", "vehicle_type"} {
		assert.True(t, fields[f], "expected violation for %s, got %v", f, ve.Violations)
	}

	up, err := st.GetUpload(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReview, up.Status, "nothing saved on validation failure")
}

func TestConfirmSave_UnreadableStoredExtraction(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	up, err := st.CreateUpload(ctx, model.Upload{
		DocumentKey:   "a.pdf",
		Status:        model.StatusCompleted,
		ExtractedData: json.RawMessage(`{"legacy": true}`),
	})
	require.NoError(t, err)

	body := `{"edits": {
		"insurer": "DIGIT", "policy_number": "P1", "vehicle_number": "KA01AB1234",
		"issue_date": "2024-01-01", "expiry_date": "2024-12-31",
		"total_premium": 9000, "idv": 250000
	}}`
	p, err := NewConfirmer(st).ConfirmSave(ctx, up.ID, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, "DIGIT", p.Insurer)
	assert.Equal(t, model.UnknownMake, p.Make)
}

func TestConfirmSave_WrongStatus(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	up, err := st.CreateUpload(ctx, model.Upload{DocumentKey: "a.pdf"})
	require.NoError(t, err)

	_, err = NewConfirmer(st).ConfirmSave(ctx, up.ID, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotReviewable))
}

func TestConfirmSave_UnknownUpload(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	_, err := NewConfirmer(st).ConfirmSave(context.Background(), "missing", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestConfirmSave_MalformedBody(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	id := reviewUpload(t, st, nil)

	_, err := NewConfirmer(st).ConfirmSave(context.Background(), id, []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode confirm-save body")
}

func TestPickString(t *testing.T) {
	t.Parallel()
	stored := model.Text("STORED", 0.9)

	tests := []struct {
		name       string
		raw        string
		wantValue  string
		wantSource model.Source
	}{
		{name: "absent uses stored", raw: ``, wantValue: "STORED", wantSource: model.SourceText},
		{name: "null uses stored", raw: `null`, wantValue: "STORED", wantSource: model.SourceText},
		{name: "blank uses stored", raw: `"  "`, wantValue: "STORED", wantSource: model.SourceText},
		{name: "bare string is manual", raw: `" NEW "`, wantValue: "NEW", wantSource: model.SourceManual},
		{name: "wrapper keeps source", raw: `{"value":"NEW","confidence":0.7,"source":"llm"}`, wantValue: "NEW", wantSource: model.SourceLLM},
		{name: "wrapper without source is manual", raw: `{"value":"NEW"}`, wantValue: "NEW", wantSource: model.SourceManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pickString(json.RawMessage(tt.raw), stored)
			assert.Equal(t, tt.wantValue, got.Or(""))
			assert.Equal(t, tt.wantSource, got.Source)
		})
	}
}
