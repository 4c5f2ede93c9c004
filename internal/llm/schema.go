package llm

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/nicsan/crm-extract/internal/model"
)

// SchemaName is the name the response format is registered under.
const SchemaName = "MotorPolicySchema"

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("schema.json")
}

// Schema returns the JSON schema every completion must satisfy.
func Schema() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

// rawExtract is the wire shape of a completion. Money arrives as strings.
type rawExtract struct {
	SchemaVersion string  `json:"schema_version"`
	PolicyNumber  *string `json:"policy_number"`
	VehicleNumber *string `json:"vehicle_number"`
	Insurer       *string `json:"insurer"`
	IssueDate     *string `json:"issue_date"`
	ExpiryDate    *string `json:"expiry_date"`
	TotalPremium  *string `json:"total_premium"`
	NetOD         *string `json:"net_od"`
	IDV           *string `json:"idv"`
}

// Extracted is a schema-valid completion with money coerced to numbers.
type Extracted struct {
	PolicyNumber  *string  `json:"policy_number"`
	VehicleNumber *string  `json:"vehicle_number"`
	Insurer       *string  `json:"insurer"`
	IssueDate     *string  `json:"issue_date"`
	ExpiryDate    *string  `json:"expiry_date"`
	TotalPremium  *float64 `json:"total_premium"`
	NetOD         *float64 `json:"net_od"`
	IDV           *float64 `json:"idv"`
}

// replyError marks a completion whose content is unusable. kind is either
// kindInvalidJSON or kindSchema.
type replyError struct {
	kind string
	err  error
}

func (e *replyError) Error() string { return e.err.Error() }
func (e *replyError) Unwrap() error { return e.err }

const (
	kindInvalidJSON = "invalid_json"
	kindSchema      = "schema"
)

// parseReply decodes and validates a completion's content.
func parseReply(content string) (Extracted, error) {
	body := cleanJSON(content)

	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return Extracted{}, &replyError{kind: kindInvalidJSON, err: err}
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Extracted{}, &replyError{kind: kindSchema, err: err}
	}

	var raw rawExtract
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Extracted{}, &replyError{kind: kindInvalidJSON, err: err}
	}

	return Extracted{
		PolicyNumber:  blankToNil(raw.PolicyNumber),
		VehicleNumber: blankToNil(raw.VehicleNumber),
		Insurer:       blankToNil(raw.Insurer),
		IssueDate:     blankToNil(raw.IssueDate),
		ExpiryDate:    blankToNil(raw.ExpiryDate),
		TotalPremium:  coerceMoney(raw.TotalPremium),
		NetOD:         coerceMoney(raw.NetOD),
		IDV:           coerceMoney(raw.IDV),
	}, nil
}

// coerceMoney parses an amount such as "₹ 12,345.50". Anything that is not
// a number becomes nil.
func coerceMoney(s *string) *float64 {
	if s == nil {
		return nil
	}
	v, ok := model.ParseMoney(*s)
	if !ok {
		return nil
	}
	d := decimal.NewFromFloat(v)
	if d.IsNegative() {
		return nil
	}
	f, _ := d.Round(2).Float64()
	return &f
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
