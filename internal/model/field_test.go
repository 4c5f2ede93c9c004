package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewField_ClampsConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, NewField("x", 1.7, SourceText).Confidence)
	assert.Equal(t, 0.0, NewField("x", -0.2, SourceText).Confidence)
	assert.Equal(t, 0.4, NewField("x", 0.4, SourceText).Confidence)
}

func TestConstructors(t *testing.T) {
	t.Parallel()

	t.Run("LLM nil is empty", func(t *testing.T) {
		t.Parallel()
		f := LLM[string](nil, 0.9)
		assert.True(t, f.IsNull())
		assert.Equal(t, 0.0, f.Confidence)
		assert.Equal(t, SourceLLM, f.Source)
	})

	t.Run("LLM value", func(t *testing.T) {
		t.Parallel()
		v := "D217080603"
		f := LLM(&v, 0.95)
		assert.Equal(t, "D217080603", f.Or(""))
		assert.Equal(t, 0.95, f.Confidence)
	})

	t.Run("Manual is fully trusted", func(t *testing.T) {
		t.Parallel()
		f := Manual(1200.5)
		assert.Equal(t, 1.0, f.Confidence)
		assert.Equal(t, SourceManual, f.Source)
	})

	t.Run("Nulled keeps note", func(t *testing.T) {
		t.Parallel()
		f := Nulled[float64]("evidence_gate")
		assert.True(t, f.IsNull())
		assert.Equal(t, SourceNone, f.Source)
		assert.Equal(t, "evidence_gate", f.Note)
	})

	t.Run("Merged", func(t *testing.T) {
		t.Parallel()
		f := Merged("MARUTI", 0.7)
		assert.Equal(t, SourceMerged, f.Source)
	})
}

func TestSourceRank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, SourceManual.Rank(), SourceText.Rank())
	assert.Greater(t, SourceText.Rank(), SourceLLM.Rank())
	assert.Greater(t, SourceLLM.Rank(), SourceNone.Rank())
	assert.False(t, Source("ocr").Valid())
}

func TestSource_UnmarshalLegacyRegex(t *testing.T) {
	t.Parallel()

	var f Field[string]
	require.NoError(t, json.Unmarshal([]byte(`{"value":"X","confidence":0.9,"source":"regex"}`), &f))
	assert.Equal(t, SourceText, f.Source)

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"X","confidence":0.9,"source":"text"}`, string(out))
}

func TestField_Upgrade(t *testing.T) {
	t.Parallel()

	v := "x"
	tests := []struct {
		name  string
		field Field[string]
		src   Source
		want  bool
	}{
		{"empty accepts text", Empty[string](), SourceText, true},
		{"llm accepts text", LLM(&v, 0.9), SourceText, true},
		{"text rejects text", Text(v, 0.9), SourceText, false},
		{"manual rejects text", Manual(v), SourceText, false},
		{"llm rejects llm", LLM(&v, 0.9), SourceLLM, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.field.CanUpgradeTo(tt.src))
		})
	}
}

func TestField_NullMarshalsValueNull(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(Empty[float64]())
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":null,"confidence":0,"source":"none"}`, string(out))
}
