package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

type AccessLogRepo struct {
	db *DB
}

func NewAccessLogRepo(db *DB) *AccessLogRepo {
	return &AccessLogRepo{db: db}
}

func (r *AccessLogRepo) Insert(ctx context.Context, e *model.AccessLogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO vic_access_logs (id, share_token, accessed_by_hospital, accessed_fields, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ShareToken, e.AccessedByHospital, nullableJSON(e.AccessedFields),
		e.IPAddress, e.UserAgent, e.CreatedAt,
	); err != nil {
		return &store.StorageError{Op: "insert access log", Err: err}
	}
	return nil
}

func (r *AccessLogRepo) List(ctx context.Context, f store.AccessLogFilter) ([]model.AccessLogEntry, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	// Zero-value filter fields match everything.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, share_token, accessed_by_hospital, accessed_fields, ip_address, user_agent, created_at
		FROM vic_access_logs
		WHERE ($1 = '' OR share_token = $1)
		  AND ($2 = '' OR accessed_by_hospital = $2)
		ORDER BY created_at DESC
	`, f.ShareToken, f.Hospital)
	if err != nil {
		return nil, &store.StorageError{Op: "query access logs", Err: err}
	}
	defer rows.Close()

	var entries []model.AccessLogEntry
	for rows.Next() {
		var (
			e      model.AccessLogEntry
			fields []byte
		)
		if err := rows.Scan(
			&e.ID, &e.ShareToken, &e.AccessedByHospital, &fields,
			&e.IPAddress, &e.UserAgent, &e.CreatedAt,
		); err != nil {
			return nil, &store.StorageError{Op: "scan access log", Err: err}
		}
		e.AccessedFields = fields
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
