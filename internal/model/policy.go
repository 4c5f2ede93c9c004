package model

import (
	"encoding/json"
	"strings"
	"time"
)

// SchemaVersion is the only accepted extraction schema version.
const SchemaVersion = "1.0"

// Debug carries review aids that are never used for decisions.
type Debug struct {
	EvidenceSnippet string `json:"evidence_snippet,omitempty"`
	PagesScanned    *int   `json:"pages_scanned,omitempty"`
}

// PolicyExtract is the field-level extraction record for one motor policy.
// Stages never mutate a record in place; they return a modified copy.
type PolicyExtract struct {
	SchemaVersion string `json:"schema_version"`

	Insurer       Field[string]  `json:"insurer"`
	PolicyNumber  Field[string]  `json:"policy_number"`
	VehicleNumber Field[string]  `json:"vehicle_number"`
	IssueDate     Field[string]  `json:"issue_date"`
	ExpiryDate    Field[string]  `json:"expiry_date"`
	TotalPremium  Field[float64] `json:"total_premium"`
	IDV           Field[float64] `json:"idv"`

	Make     Field[string] `json:"make"`
	Model    Field[string] `json:"model"`
	Variant  Field[string] `json:"variant"`
	FuelType Field[string] `json:"fuel_type"`

	Debug *Debug `json:"__debug__,omitempty"`
}

// NewPolicyExtract returns a record with every field empty.
func NewPolicyExtract() PolicyExtract {
	return PolicyExtract{
		SchemaVersion: SchemaVersion,
		Insurer:       Empty[string](),
		PolicyNumber:  Empty[string](),
		VehicleNumber: Empty[string](),
		IssueDate:     Empty[string](),
		ExpiryDate:    Empty[string](),
		TotalPremium:  Empty[float64](),
		IDV:           Empty[float64](),
		Make:          Empty[string](),
		Model:         Empty[string](),
		Variant:       Empty[string](),
		FuelType:      Empty[string](),
	}
}

// Tier selects which configured model handles an extraction.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
)

// ParseTier maps anything other than "secondary" to the primary tier.
func ParseTier(s string) Tier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierSecondary)) {
		return TierSecondary
	}
	return TierPrimary
}

// Known insurer hints.
const (
	InsurerTataAIG = "TATA_AIG"
	InsurerDigit   = "DIGIT"
)

// InsurerHint maps a free-form insurer name to a known hint, or "".
func InsurerHint(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	t := b.String()
	switch {
	case t == "":
		return ""
	case strings.Contains(t, "TATA") && strings.Contains(t, "AIG"):
		return InsurerTataAIG
	case strings.Contains(t, "DIGIT"):
		return InsurerDigit
	}
	return ""
}

// UploadStatus is the lifecycle state of an uploaded document.
type UploadStatus string

const (
	StatusUploaded   UploadStatus = "UPLOADED"
	StatusProcessing UploadStatus = "PROCESSING"
	StatusReview     UploadStatus = "REVIEW"
	StatusSaved      UploadStatus = "SAVED"
	StatusCompleted  UploadStatus = "COMPLETED"
)

// AllStatuses lists the allowed upload statuses in lifecycle order.
var AllStatuses = []UploadStatus{StatusUploaded, StatusProcessing, StatusReview, StatusSaved, StatusCompleted}

// ParseStatus normalizes s and reports whether it is an allowed status.
func ParseStatus(s string) (UploadStatus, bool) {
	st := UploadStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, a := range AllStatuses {
		if a == st {
			return st, true
		}
	}
	return st, false
}

// Reviewable reports whether a confirm-save may run against the upload.
func (s UploadStatus) Reviewable() bool {
	return s == StatusReview || s == StatusCompleted
}

// Upload is a stored PDF awaiting or past extraction.
type Upload struct {
	ID            string          `json:"id"`
	DocumentKey   string          `json:"document_key"`
	Status        UploadStatus    `json:"status"`
	InsurerHint   string          `json:"insurer_hint,omitempty"`
	ExtractedData json.RawMessage `json:"extracted_data,omitempty"`
	UploadedBy    string          `json:"uploaded_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Policy is a confirmed policy row.
type Policy struct {
	ID            string         `json:"id"`
	UploadID      string         `json:"upload_id"`
	Insurer       string         `json:"insurer"`
	PolicyNumber  string         `json:"policy_number"`
	VehicleNumber string         `json:"vehicle_number"`
	IssueDate     string         `json:"issue_date"`
	ExpiryDate    string         `json:"expiry_date"`
	TotalPremium  float64        `json:"total_premium"`
	IDV           float64        `json:"idv"`
	Make          string         `json:"make"`
	Model         string         `json:"model,omitempty"`
	Variant       string         `json:"variant,omitempty"`
	FuelType      string         `json:"fuel_type,omitempty"`
	ProductType   string         `json:"product_type"`
	VehicleType   string         `json:"vehicle_type"`
	NCB           float64        `json:"ncb"`
	ManualExtras  map[string]any `json:"manual_extras,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
