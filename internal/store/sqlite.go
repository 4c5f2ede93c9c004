package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nicsan/crm-extract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pdf_uploads (
	id             TEXT PRIMARY KEY,
	document_key   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'UPLOADED'
		CHECK (status IN ('UPLOADED', 'PROCESSING', 'REVIEW', 'SAVED', 'COMPLETED')),
	insurer_hint   TEXT NOT NULL DEFAULT '',
	extracted_data TEXT,
	uploaded_by    TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS policies (
	id             TEXT PRIMARY KEY,
	upload_id      TEXT NOT NULL REFERENCES pdf_uploads(id),
	insurer        TEXT NOT NULL,
	policy_number  TEXT NOT NULL,
	vehicle_number TEXT NOT NULL,
	issue_date     TEXT NOT NULL,
	expiry_date    TEXT NOT NULL,
	total_premium  REAL NOT NULL,
	idv            REAL NOT NULL,
	make           TEXT NOT NULL,
	model          TEXT NOT NULL DEFAULT '',
	variant        TEXT NOT NULL DEFAULT '',
	fuel_type      TEXT NOT NULL DEFAULT '',
	product_type   TEXT NOT NULL,
	vehicle_type   TEXT NOT NULL,
	ncb            REAL NOT NULL DEFAULT 0,
	manual_extras  TEXT,
	created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pdf_uploads_status ON pdf_uploads(status);
CREATE INDEX IF NOT EXISTS idx_pdf_uploads_created_at ON pdf_uploads(created_at);
CREATE INDEX IF NOT EXISTS idx_policies_upload_id ON policies(upload_id);
CREATE INDEX IF NOT EXISTS idx_policies_created_at ON policies(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateUpload(ctx context.Context, u model.Upload) (*model.Upload, error) {
	u, err := prepareUpload(u)
	if err != nil {
		return nil, err
	}
	var data any
	if len(u.ExtractedData) > 0 {
		data = string(u.ExtractedData)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pdf_uploads (`+uploadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DocumentKey, string(u.Status), u.InsurerHint, data, u.UploadedBy, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert upload")
	}
	return &u, nil
}

func (s *SQLiteStore) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM pdf_uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get upload %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get upload")
	}
	return u, nil
}

func (s *SQLiteStore) ListUploads(ctx context.Context, filter UploadFilter) ([]model.Upload, error) {
	filter = filter.normalize()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Statuses)), ", ")

	args := make([]any, 0, len(filter.Statuses)+2)
	for _, st := range filter.statusStrings() {
		args = append(args, st)
	}
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+uploadColumns+` FROM pdf_uploads WHERE status IN (`+placeholders+`)
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list uploads")
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan upload")
		}
		uploads = append(uploads, *u)
	}
	return uploads, eris.Wrap(rows.Err(), "sqlite: iterate uploads")
}

func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.UploadStatus) error {
	if err := checkStatus(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pdf_uploads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set status")
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) SaveExtraction(ctx context.Context, id string, data json.RawMessage, insurerHint string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pdf_uploads SET extracted_data = ?, insurer_hint = ?, updated_at = ? WHERE id = ?`,
		string(data), insurerHint, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save extraction")
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[model.UploadStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pdf_uploads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()

	counts := emptyCounts()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.UploadStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate status counts")
}

func (s *SQLiteStore) SavePolicy(ctx context.Context, p model.Policy) (*model.Policy, error) {
	p, extras, err := preparePolicy(p)
	if err != nil {
		return nil, err
	}
	var extrasArg any
	if extras != nil {
		extrasArg = string(extras)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin save policy")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO policies (`+policyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UploadID, p.Insurer, p.PolicyNumber, p.VehicleNumber, p.IssueDate, p.ExpiryDate,
		p.TotalPremium, p.IDV, p.Make, p.Model, p.Variant, p.FuelType, p.ProductType, p.VehicleType,
		p.NCB, extrasArg, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert policy")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE pdf_uploads SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusSaved), p.CreatedAt, p.UploadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: mark upload saved")
	}
	if err := checkRowsAffected(res, p.UploadID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit save policy")
	}
	zap.L().Info("sqlite: policy saved", zap.String("upload_id", p.UploadID), zap.String("policy_id", p.ID))
	return &p, nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context, since time.Time) ([]model.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE created_at >= ? ORDER BY created_at ASC`,
		since.UTC(),
	)
}

func (s *SQLiteStore) RecentPolicies(ctx context.Context, limit int) ([]model.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT `+policyColumns+` FROM policies ORDER BY created_at DESC LIMIT ?`,
		recentLimit(limit),
	)
}

func (s *SQLiteStore) queryPolicies(ctx context.Context, query string, args ...any) ([]model.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list policies")
	}
	defer rows.Close()

	var policies []model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan policy")
		}
		policies = append(policies, *p)
	}
	return policies, eris.Wrap(rows.Err(), "sqlite: iterate policies")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: upload %s", id)
	}
	return nil
}
