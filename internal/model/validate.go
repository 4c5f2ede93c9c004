package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Violation names a single failed constraint.
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
}

// ValidationError lists every constraint a payload failed.
type ValidationError struct {
	Violations []Violation `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Constraint
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, constraint string) {
	e.Violations = append(e.Violations, Violation{Field: field, Constraint: constraint})
}

func (e *ValidationError) errOrNil() error {
	if len(e.Violations) == 0 {
		return nil
	}
	return e
}

func checkField[T any](ve *ValidationError, name string, f Field[T], required bool, check func(T) string) {
	if !f.Present() {
		if required {
			ve.add(name, "required")
		}
		return
	}
	if !f.Source.Valid() {
		ve.add(name+".source", fmt.Sprintf("unknown source %q", f.Source))
	}
	if math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1 {
		ve.add(name+".confidence", "must be within [0,1]")
	}
	v, ok := f.Get()
	if !ok {
		if f.Confidence != 0 {
			ve.add(name+".confidence", "must be 0 when value is null")
		}
		return
	}
	if check != nil {
		if msg := check(v); msg != "" {
			ve.add(name+".value", msg)
		}
	}
}

func checkMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return "must be a non-negative number"
	}
	return ""
}

func checkDate(v string) string {
	if !isoDateRe.MatchString(v) {
		return "must match YYYY-MM-DD"
	}
	return ""
}

// Validate checks a record against the extraction schema.
func Validate(rec PolicyExtract) error {
	ve := &ValidationError{}
	if rec.SchemaVersion != SchemaVersion {
		ve.add("schema_version", fmt.Sprintf("must be %q", SchemaVersion))
	}

	checkField(ve, "insurer", rec.Insurer, true, nil)
	checkField(ve, "policy_number", rec.PolicyNumber, true, nil)
	checkField(ve, "vehicle_number", rec.VehicleNumber, true, nil)
	checkField(ve, "issue_date", rec.IssueDate, true, checkDate)
	checkField(ve, "expiry_date", rec.ExpiryDate, true, checkDate)
	checkField(ve, "total_premium", rec.TotalPremium, true, checkMoney)
	checkField(ve, "idv", rec.IDV, true, checkMoney)

	checkField(ve, "make", rec.Make, false, nil)
	checkField(ve, "model", rec.Model, false, nil)
	checkField(ve, "variant", rec.Variant, false, nil)
	checkField(ve, "fuel_type", rec.FuelType, false, nil)

	if rec.Debug != nil && rec.Debug.PagesScanned != nil && *rec.Debug.PagesScanned < 0 {
		ve.add("__debug__.pages_scanned", "must be non-negative")
	}
	return ve.errOrNil()
}

// ParsePolicyExtract strictly decodes and validates a stored or submitted
// record. Unknown keys are rejected.
func ParsePolicyExtract(data []byte) (PolicyExtract, error) {
	var rec PolicyExtract
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return PolicyExtract{}, eris.Wrap(err, "model: decode policy extract")
	}
	if err := Validate(rec); err != nil {
		return PolicyExtract{}, err
	}
	return rec, nil
}
