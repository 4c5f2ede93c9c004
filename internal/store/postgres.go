package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nicsan/crm-extract/internal/db"
	"github.com/nicsan/crm-extract/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateUpload(ctx context.Context, u model.Upload) (*model.Upload, error) {
	u, err := prepareUpload(u)
	if err != nil {
		return nil, err
	}
	var data []byte
	if len(u.ExtractedData) > 0 {
		data = u.ExtractedData
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pdf_uploads (`+uploadColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.DocumentKey, string(u.Status), u.InsurerHint, data, u.UploadedBy, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert upload")
	}
	return &u, nil
}

func (s *PostgresStore) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM pdf_uploads WHERE id = $1`, id)
	u, err := scanUpload(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get upload %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get upload")
	}
	return u, nil
}

func (s *PostgresStore) ListUploads(ctx context.Context, filter UploadFilter) ([]model.Upload, error) {
	filter = filter.normalize()
	rows, err := s.pool.Query(ctx,
		`SELECT `+uploadColumns+` FROM pdf_uploads WHERE status = ANY($1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		filter.statusStrings(), filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list uploads")
	}
	defer rows.Close()

	var uploads []model.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan upload")
		}
		uploads = append(uploads, *u)
	}
	return uploads, eris.Wrap(rows.Err(), "postgres: iterate uploads")
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status model.UploadStatus) error {
	if err := checkStatus(status); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pdf_uploads SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set status")
	}
	return checkTag(tag, id)
}

func (s *PostgresStore) SaveExtraction(ctx context.Context, id string, data json.RawMessage, insurerHint string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pdf_uploads SET extracted_data = $1, insurer_hint = $2, updated_at = now() WHERE id = $3`,
		[]byte(data), insurerHint, id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: save extraction")
	}
	return checkTag(tag, id)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.UploadStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM pdf_uploads GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := emptyCounts()
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.UploadStatus(status)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate status counts")
}

func (s *PostgresStore) SavePolicy(ctx context.Context, p model.Policy) (*model.Policy, error) {
	p, extras, err := preparePolicy(p)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin save policy")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO policies (`+policyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		p.ID, p.UploadID, p.Insurer, p.PolicyNumber, p.VehicleNumber, p.IssueDate, p.ExpiryDate,
		p.TotalPremium, p.IDV, p.Make, p.Model, p.Variant, p.FuelType, p.ProductType, p.VehicleType,
		p.NCB, extras, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert policy")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE pdf_uploads SET status = $1, updated_at = now() WHERE id = $2`,
		string(model.StatusSaved), p.UploadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mark upload saved")
	}
	if err := checkTag(tag, p.UploadID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit save policy")
	}
	zap.L().Info("postgres: policy saved", zap.String("upload_id", p.UploadID), zap.String("policy_id", p.ID))
	return &p, nil
}

func (s *PostgresStore) ListPolicies(ctx context.Context, since time.Time) ([]model.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE created_at >= $1 ORDER BY created_at ASC`,
		since.UTC(),
	)
}

func (s *PostgresStore) RecentPolicies(ctx context.Context, limit int) ([]model.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT `+policyColumns+` FROM policies ORDER BY created_at DESC LIMIT $1`,
		recentLimit(limit),
	)
}

func (s *PostgresStore) queryPolicies(ctx context.Context, query string, args ...any) ([]model.Policy, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list policies")
	}
	defer rows.Close()

	var policies []model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan policy")
		}
		policies = append(policies, *p)
	}
	return policies, eris.Wrap(rows.Err(), "postgres: iterate policies")
}

func checkTag(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: upload %s", id)
	}
	return nil
}
