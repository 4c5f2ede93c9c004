package review

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/model"
	"github.com/nicsan/crm-extract/internal/store"
)

// ErrNotReviewable is returned when confirm-save targets an upload that is
// not in REVIEW or COMPLETED.
var ErrNotReviewable = errors.New("review: upload not reviewable")

// Legacy bodies carry no product or vehicle type; these match the values
// older clients implied.
const (
	legacyProductType = "MOTOR"
	legacyVehicleType = "PRIVATE"
)

// Confirmer accepts reviewed extractions and writes policy rows.
type Confirmer struct {
	store store.Store
}

// NewConfirmer creates a Confirmer.
func NewConfirmer(st store.Store) *Confirmer {
	return &Confirmer{store: st}
}

// ConfirmSave merges the submitted body over the stored extraction,
// validates the result and saves it as a policy. The body is either a
// schema_version "1.0" ConfirmSave payload or a legacy {"edits": {...}}
// object of raw values.
func (c *Confirmer) ConfirmSave(ctx context.Context, uploadID string, body []byte) (*model.Policy, error) {
	log := zap.L().With(zap.String("upload_id", uploadID))

	up, err := c.store.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, eris.Wrap(err, "review: load upload")
	}
	if !up.Status.Reviewable() {
		return nil, eris.Wrapf(ErrNotReviewable, "review: upload %s is %s", uploadID, up.Status)
	}

	incoming, legacy, err := decodeBody(body)
	if err != nil {
		return nil, err
	}

	stored := model.NewPolicyExtract()
	if len(up.ExtractedData) > 0 {
		rec, err := model.ParsePolicyExtract(up.ExtractedData)
		if err != nil {
			log.Warn("review: stored extraction unreadable, using submitted values only", zap.Error(err))
		} else {
			stored = rec
		}
	}

	cs := merge(incoming, stored, legacy)
	if err := cs.Validate(); err != nil {
		return nil, err
	}

	p, err := c.store.SavePolicy(ctx, cs.Policy(uploadID))
	if err != nil {
		return nil, eris.Wrap(err, "review: save policy")
	}
	log.Info("review: policy confirmed",
		zap.String("policy_id", p.ID),
		zap.Bool("legacy_body", legacy),
	)
	return p, nil
}

// decodeBody returns the submitted values keyed by field name. Legacy
// bodies have their edits overlaid on the remaining top-level keys.
func decodeBody(body []byte) (map[string]json.RawMessage, bool, error) {
	top := map[string]json.RawMessage{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &top); err != nil {
			return nil, false, eris.Wrap(err, "review: decode confirm-save body")
		}
	}
	if model.UnwrapString(top["schema_version"]) == model.SchemaVersion {
		return top, false, nil
	}

	incoming := make(map[string]json.RawMessage, len(top))
	for k, v := range top {
		if k != "edits" {
			incoming[k] = v
		}
	}
	if raw, ok := top["edits"]; ok && !isJSONNull(raw) {
		var edits map[string]json.RawMessage
		if err := json.Unmarshal(raw, &edits); err != nil {
			return nil, true, eris.Wrap(err, "review: decode edits")
		}
		for k, v := range edits {
			incoming[k] = v
		}
	}
	return incoming, true, nil
}

func merge(in map[string]json.RawMessage, stored model.PolicyExtract, legacy bool) model.ConfirmSave {
	cs := model.ConfirmSave{
		SchemaVersion: model.SchemaVersion,
		Insurer:       pickString(in["insurer"], stored.Insurer),
		PolicyNumber:  pickString(in["policy_number"], stored.PolicyNumber),
		VehicleNumber: pickString(in["vehicle_number"], stored.VehicleNumber),
		IssueDate:     pickString(in["issue_date"], stored.IssueDate),
		ExpiryDate:    pickString(in["expiry_date"], stored.ExpiryDate),
		TotalPremium:  pickMoney(in["total_premium"], stored.TotalPremium),
		IDV:           pickMoney(in["idv"], stored.IDV),
		Model:         pickString(in["model"], stored.Model),
		Variant:       pickString(in["variant"], stored.Variant),
		FuelType:      pickString(in["fuel_type"], stored.FuelType),
		ProductType:   strings.TrimSpace(model.UnwrapString(in["product_type"])),
		VehicleType:   strings.TrimSpace(model.UnwrapString(in["vehicle_type"])),
		NCB:           model.CoerceNCB(in["ncb"]),
	}
	makeName := pickString(in["make"], stored.Make)
	cs.Make = model.NormalizeMake(makeName.Or(""))

	if raw := in["manual_extras"]; !isJSONNull(raw) {
		var extras map[string]any
		if err := json.Unmarshal(raw, &extras); err == nil {
			cs.ManualExtras = extras
		}
	}

	if legacy {
		if cs.ProductType == "" {
			cs.ProductType = legacyProductType
		}
		if cs.VehicleType == "" {
			cs.VehicleType = legacyVehicleType
		}
	}
	return cs
}

// pickString prefers a non-blank submitted value and falls back to the
// stored field. A submitted field wrapper keeps its own provenance.
func pickString(raw json.RawMessage, stored model.Field[string]) model.Field[string] {
	s := strings.TrimSpace(model.UnwrapString(raw))
	if s == "" {
		if stored.IsNull() {
			return model.Empty[string]()
		}
		return stored
	}
	var f model.Field[string]
	if err := json.Unmarshal(raw, &f); err == nil && f.Value != nil && f.Source.Valid() {
		f.Value = &s
		return f
	}
	return model.Manual(s)
}

// pickMoney is pickString for amounts. Submitted strings such as
// "₹15,432" are parsed; unparseable input falls back to the stored value.
func pickMoney(raw json.RawMessage, stored model.Field[float64]) model.Field[float64] {
	v, ok := model.ParseMoney(model.UnwrapString(raw))
	if !ok {
		if stored.IsNull() {
			return model.Empty[float64]()
		}
		return stored
	}
	var f model.Field[float64]
	if err := json.Unmarshal(raw, &f); err == nil && f.Value != nil && f.Source.Valid() {
		f.Value = &v
		return f
	}
	return model.Manual(v)
}

func isJSONNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
