package model

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// UnknownMake is stored when no make was extracted or entered.
const UnknownMake = "UNKNOWN"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ConfirmSave is the reviewed payload submitted when staff accept an
// extraction. Every required field must carry a value.
type ConfirmSave struct {
	SchemaVersion string `json:"schema_version" validate:"required,eq=1.0"`

	Insurer       Field[string]  `json:"insurer"`
	PolicyNumber  Field[string]  `json:"policy_number"`
	VehicleNumber Field[string]  `json:"vehicle_number"`
	IssueDate     Field[string]  `json:"issue_date"`
	ExpiryDate    Field[string]  `json:"expiry_date"`
	TotalPremium  Field[float64] `json:"total_premium"`
	IDV           Field[float64] `json:"idv"`

	Model    Field[string] `json:"model"`
	Variant  Field[string] `json:"variant"`
	FuelType Field[string] `json:"fuel_type"`

	ProductType  string         `json:"product_type" validate:"required"`
	VehicleType  string         `json:"vehicle_type" validate:"required"`
	Make         string         `json:"make"`
	NCB          float64        `json:"ncb" validate:"gte=0,lte=100"`
	ManualExtras map[string]any `json:"manual_extras,omitempty"`
}

type confirmSaveWire struct {
	SchemaVersion string         `json:"schema_version"`
	Insurer       Field[string]  `json:"insurer"`
	PolicyNumber  Field[string]  `json:"policy_number"`
	VehicleNumber Field[string]  `json:"vehicle_number"`
	IssueDate     Field[string]  `json:"issue_date"`
	ExpiryDate    Field[string]  `json:"expiry_date"`
	TotalPremium  Field[float64] `json:"total_premium"`
	IDV           Field[float64] `json:"idv"`
	Model         Field[string]  `json:"model"`
	Variant       Field[string]  `json:"variant"`
	FuelType      Field[string]  `json:"fuel_type"`

	ProductType  string          `json:"product_type"`
	VehicleType  string          `json:"vehicle_type"`
	Make         json.RawMessage `json:"make"`
	NCB          json.RawMessage `json:"ncb"`
	ManualExtras map[string]any  `json:"manual_extras"`
}

// DecodeConfirmSave parses and validates a confirm-save body. Constraint
// failures come back as a *ValidationError listing each field.
func DecodeConfirmSave(data []byte) (ConfirmSave, error) {
	var w confirmSaveWire
	if err := json.Unmarshal(data, &w); err != nil {
		return ConfirmSave{}, eris.Wrap(err, "model: decode confirm-save")
	}
	cs := ConfirmSave{
		SchemaVersion: w.SchemaVersion,
		Insurer:       w.Insurer,
		PolicyNumber:  w.PolicyNumber,
		VehicleNumber: w.VehicleNumber,
		IssueDate:     w.IssueDate,
		ExpiryDate:    w.ExpiryDate,
		TotalPremium:  w.TotalPremium,
		IDV:           w.IDV,
		Model:         w.Model,
		Variant:       w.Variant,
		FuelType:      w.FuelType,
		ProductType:   strings.TrimSpace(w.ProductType),
		VehicleType:   strings.TrimSpace(w.VehicleType),
		Make:          NormalizeMake(UnwrapString(w.Make)),
		NCB:           CoerceNCB(w.NCB),
		ManualExtras:  w.ManualExtras,
	}
	if err := cs.Validate(); err != nil {
		return ConfirmSave{}, err
	}
	return cs, nil
}

// Validate applies the confirm-save constraints.
func (c ConfirmSave) Validate() error {
	ve := &ValidationError{}
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return eris.Wrap(err, "model: validate confirm-save")
		}
		for _, fe := range verrs {
			ve.add(fe.Field(), describeTag(fe))
		}
	}

	requireValue(ve, "insurer", c.Insurer, nil)
	requireValue(ve, "policy_number", c.PolicyNumber, nil)
	requireValue(ve, "vehicle_number", c.VehicleNumber, nil)
	requireValue(ve, "issue_date", c.IssueDate, checkDate)
	requireValue(ve, "expiry_date", c.ExpiryDate, checkDate)
	requireValue(ve, "total_premium", c.TotalPremium, checkMoney)
	requireValue(ve, "idv", c.IDV, checkMoney)
	return ve.errOrNil()
}

func requireValue[T any](ve *ValidationError, name string, f Field[T], check func(T) string) {
	if f.IsNull() {
		ve.add(name, "required")
		return
	}
	checkField(ve, name, f, true, check)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "eq":
		return "must be " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	}
	return "failed " + fe.Tag()
}

// Policy converts the confirmed payload into a policy row.
func (c ConfirmSave) Policy(uploadID string) Policy {
	return Policy{
		UploadID:      uploadID,
		Insurer:       c.Insurer.Or(""),
		PolicyNumber:  c.PolicyNumber.Or(""),
		VehicleNumber: c.VehicleNumber.Or(""),
		IssueDate:     c.IssueDate.Or(""),
		ExpiryDate:    c.ExpiryDate.Or(""),
		TotalPremium:  c.TotalPremium.Or(0),
		IDV:           c.IDV.Or(0),
		Make:          c.Make,
		Model:         c.Model.Or(""),
		Variant:       c.Variant.Or(""),
		FuelType:      c.FuelType.Or(""),
		ProductType:   c.ProductType,
		VehicleType:   c.VehicleType,
		NCB:           c.NCB,
		ManualExtras:  c.ManualExtras,
	}
}

// NormalizeMake trims s and substitutes UnknownMake when blank.
func NormalizeMake(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownMake
	}
	return s
}

// UnwrapString reads either a bare JSON string or a {"value": ...} wrapper.
func UnwrapString(raw json.RawMessage) string {
	raw = UnwrapValue(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// UnwrapValue returns the "value" member of a field wrapper, or raw itself.
// Only an object carrying a "value" key is a wrapper; any other object is
// returned as is. JSON null comes back empty.
func UnwrapValue(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil
		}
		if v, ok := obj["value"]; ok {
			return UnwrapValue(v)
		}
	}
	return raw
}

// CoerceNCB turns a no-claim-bonus input into a percentage in [0,100].
// Blank, malformed and out-of-range inputs all become 0.
func CoerceNCB(raw json.RawMessage) float64 {
	s := strings.TrimSpace(UnwrapString(raw))
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	if f < 0 || f > 100 {
		return 0
	}
	return f
}

// ParseMoney strips currency glyphs, separators and whitespace and parses
// what remains. ok is false for anything that is not a number.
func ParseMoney(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || r == '₹' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}
