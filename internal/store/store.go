package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/nicsan/crm-extract/internal/config"
	"github.com/nicsan/crm-extract/internal/model"
)

// MaxUploadLimit caps a single ListUploads page.
const MaxUploadLimit = 100

const (
	defaultUploadLimit = 20
	defaultRecentLimit = 6
	maxRecentLimit     = 25
)

var (
	// ErrNotFound is returned when an upload does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidStatus is returned by SetStatus for a status outside
	// model.AllStatuses.
	ErrInvalidStatus = errors.New("store: invalid status")
)

// DefaultListStatuses are listed when an UploadFilter names no status.
var DefaultListStatuses = []model.UploadStatus{model.StatusUploaded, model.StatusProcessing, model.StatusReview}

// UploadFilter specifies criteria for listing uploads.
type UploadFilter struct {
	Statuses []model.UploadStatus `json:"statuses,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

func (f UploadFilter) normalize() UploadFilter {
	if len(f.Statuses) == 0 {
		f.Statuses = DefaultListStatuses
	}
	if f.Limit <= 0 {
		f.Limit = defaultUploadLimit
	}
	f.Limit = min(f.Limit, MaxUploadLimit)
	f.Offset = max(f.Offset, 0)
	return f
}

func (f UploadFilter) statusStrings() []string {
	out := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		out[i] = string(s)
	}
	return out
}

func recentLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	return min(limit, maxRecentLimit)
}

// Store persists uploads and confirmed policies.
type Store interface {
	// Uploads
	CreateUpload(ctx context.Context, u model.Upload) (*model.Upload, error)
	GetUpload(ctx context.Context, id string) (*model.Upload, error)
	ListUploads(ctx context.Context, filter UploadFilter) ([]model.Upload, error)
	SetStatus(ctx context.Context, id string, status model.UploadStatus) error
	SaveExtraction(ctx context.Context, id string, data json.RawMessage, insurerHint string) error
	CountByStatus(ctx context.Context) (map[model.UploadStatus]int, error)

	// Policies. SavePolicy inserts the row and marks its upload SAVED in
	// one transaction.
	SavePolicy(ctx context.Context, p model.Policy) (*model.Policy, error)
	ListPolicies(ctx context.Context, since time.Time) ([]model.Policy, error)
	RecentPolicies(ctx context.Context, limit int) ([]model.Policy, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "crm.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
}

func checkStatus(status model.UploadStatus) error {
	if slices.Contains(model.AllStatuses, status) {
		return nil
	}
	return eris.Wrapf(ErrInvalidStatus, "store: status %q", status)
}

func encodeExtras(extras map[string]any) ([]byte, error) {
	if len(extras) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(extras)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal manual extras")
	}
	return data, nil
}

func decodeExtras(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var extras map[string]any
	if err := json.Unmarshal(data, &extras); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal manual extras")
	}
	return extras, nil
}

const (
	uploadColumns = `id, document_key, status, insurer_hint, extracted_data, uploaded_by, created_at, updated_at`
	policyColumns = `id, upload_id, insurer, policy_number, vehicle_number, issue_date, expiry_date,
	total_premium, idv, make, model, variant, fuel_type, product_type, vehicle_type, ncb, manual_extras, created_at`
)

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanUpload(row scannable) (*model.Upload, error) {
	var (
		u      model.Upload
		status string
		data   []byte
	)
	if err := row.Scan(&u.ID, &u.DocumentKey, &status, &u.InsurerHint, &data, &u.UploadedBy, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = model.UploadStatus(status)
	if len(data) > 0 {
		u.ExtractedData = json.RawMessage(data)
	}
	return &u, nil
}

func scanPolicy(row scannable) (*model.Policy, error) {
	var (
		p      model.Policy
		extras []byte
	)
	if err := row.Scan(
		&p.ID, &p.UploadID, &p.Insurer, &p.PolicyNumber, &p.VehicleNumber, &p.IssueDate, &p.ExpiryDate,
		&p.TotalPremium, &p.IDV, &p.Make, &p.Model, &p.Variant, &p.FuelType, &p.ProductType, &p.VehicleType,
		&p.NCB, &extras, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	m, err := decodeExtras(extras)
	if err != nil {
		return nil, err
	}
	p.ManualExtras = m
	return &p, nil
}

// prepareUpload fills defaults for a new upload row.
func prepareUpload(u model.Upload) (model.Upload, error) {
	if u.DocumentKey == "" {
		return u, eris.New("store: upload document key is required")
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = model.StatusUploaded
	}
	if err := checkStatus(u.Status); err != nil {
		return u, err
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	return u, nil
}

// preparePolicy fills the id and timestamp of a new policy row.
func preparePolicy(p model.Policy) (model.Policy, []byte, error) {
	if p.UploadID == "" {
		return p, nil, eris.New("store: policy upload id is required")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	extras, err := encodeExtras(p.ManualExtras)
	return p, extras, err
}

func emptyCounts() map[model.UploadStatus]int {
	counts := make(map[model.UploadStatus]int, len(model.AllStatuses))
	for _, s := range model.AllStatuses {
		counts[s] = 0
	}
	return counts
}
