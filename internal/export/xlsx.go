// Package export writes confirmed policies to spreadsheets for back-office
// reporting.
package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/nicsan/crm-extract/internal/model"
)

// SheetName is the worksheet holding the policy rows.
const SheetName = "Policies"

const moneyFormat = "#,##0.00"

// Header is the first row of the policy sheet.
var Header = []string{
	"Policy ID", "Upload ID", "Insurer", "Policy Number", "Vehicle Number",
	"Issue Date", "Expiry Date", "Total Premium", "IDV", "NCB %",
	"Make", "Model", "Variant", "Fuel Type", "Product Type", "Vehicle Type",
	"Manual Extras", "Saved At",
}

// Build lays out policies on a single sheet under Header.
func Build(policies []model.Policy) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}

	for _, p := range policies {
		row := sheet.AddRow()
		for _, s := range []string{p.ID, p.UploadID, p.Insurer, p.PolicyNumber, p.VehicleNumber, p.IssueDate, p.ExpiryDate} {
			row.AddCell().SetString(s)
		}
		row.AddCell().SetFloatWithFormat(p.TotalPremium, moneyFormat)
		row.AddCell().SetFloatWithFormat(p.IDV, moneyFormat)
		row.AddCell().SetFloat(p.NCB)
		for _, s := range []string{p.Make, p.Model, p.Variant, p.FuelType, p.ProductType, p.VehicleType} {
			row.AddCell().SetString(s)
		}

		extras := ""
		if len(p.ManualExtras) > 0 {
			data, err := json.Marshal(p.ManualExtras)
			if err != nil {
				return nil, eris.Wrapf(err, "export: marshal extras for policy %s", p.ID)
			}
			extras = string(data)
		}
		row.AddCell().SetString(extras)
		row.AddCell().SetString(p.CreatedAt.UTC().Format(time.RFC3339))
	}
	return f, nil
}

// WritePolicies writes the policy workbook to w.
func WritePolicies(w io.Writer, policies []model.Policy) error {
	f, err := Build(policies)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// SavePolicies writes the policy workbook to path.
func SavePolicies(path string, policies []model.Policy) error {
	f, err := Build(policies)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
