package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/nicsan/crm-extract/internal/model"
)

func samplePolicies() []model.Policy {
	return []model.Policy{
		{
			ID:            "p1",
			UploadID:      "u1",
			Insurer:       "TATA AIG",
			PolicyNumber:  "D217080603",
			VehicleNumber: "TN18BE3785",
			IssueDate:     "2024-03-15",
			ExpiryDate:    "2025-03-14",
			TotalPremium:  15432,
			IDV:           380000,
			NCB:           20,
			Make:          "MARUTI",
			ProductType:   "Private Car",
			VehicleType:   "Four Wheeler",
			ManualExtras:  map[string]any{"broker": "direct"},
			CreatedAt:     time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:           "p2",
			UploadID:     "u2",
			Insurer:      "DIGIT",
			PolicyNumber: "P-2",
			Make:         model.UnknownMake,
			CreatedAt:    time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC),
		},
	}
}

func readBack(t *testing.T, path string) *xlsx.Sheet {
	t.Helper()
	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	return sheet
}

func TestSavePolicies(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "policies.xlsx")
	require.NoError(t, SavePolicies(path, samplePolicies()))

	sheet := readBack(t, path)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(Header))
	assert.Equal(t, "Policy Number", header.Cells[3].String())

	first := sheet.Rows[1]
	assert.Equal(t, "D217080603", first.Cells[3].String())
	assert.Equal(t, "TN18BE3785", first.Cells[4].String())
	v, err := first.Cells[7].Float()
	require.NoError(t, err)
	assert.InDelta(t, 15432.0, v, 0.001)
	assert.Equal(t, `{"broker":"direct"}`, first.Cells[16].String())
	assert.Equal(t, "2024-03-16T10:00:00Z", first.Cells[17].String())

	second := sheet.Rows[2]
	assert.Equal(t, model.UnknownMake, second.Cells[10].String())
	assert.Equal(t, "", second.Cells[16].String())
}

func TestWritePolicies_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, WritePolicies(&buf, nil))
	assert.NotZero(t, buf.Len())

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 1, "header only")
}
