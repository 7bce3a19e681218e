package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

type ShareRepo struct {
	db *DB
}

func NewShareRepo(db *DB) *ShareRepo {
	return &ShareRepo{db: db}
}

func (r *ShareRepo) Insert(ctx context.Context, g *model.ShareGrant) (int64, error) {
	perms, err := json.Marshal(g.Permissions)
	if err != nil {
		return 0, &store.StorageError{Op: "marshal field permissions", Err: err}
	}

	var id int64
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO vic_shares (share_token, tx_hash, patient_id, shared_by, shared_with_hospital, field_permissions, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, g.ShareToken, g.TxHash, g.PatientID, g.SharedBy, g.SharedWithHospital,
		perms, g.ExpiresAt, g.IsActive, g.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert share grant", err)
	}
	return id, nil
}

func (r *ShareRepo) FindByToken(ctx context.Context, token string) (*model.ShareGrant, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	g, err := scanShare(r.db.QueryRowContext(ctx, `
		SELECT id, share_token, tx_hash, patient_id, shared_by, shared_with_hospital, field_permissions, expires_at, is_active, created_at, last_accessed
		FROM vic_shares
		WHERE share_token = $1
	`, token))
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.StorageError{Op: "query share grant", Err: err}
	}
	return g, nil
}

func (r *ShareRepo) ListByPatient(ctx context.Context, patientID string) ([]model.ShareGrant, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, share_token, tx_hash, patient_id, shared_by, shared_with_hospital, field_permissions, expires_at, is_active, created_at, last_accessed
		FROM vic_shares
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`, patientID)
	if err != nil {
		return nil, &store.StorageError{Op: "query share grants", Err: err}
	}
	defer rows.Close()

	var grants []model.ShareGrant
	for rows.Next() {
		g, err := scanShare(rows)
		if err != nil {
			return nil, &store.StorageError{Op: "scan share grant", Err: err}
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

// Revoke deactivates a grant. Revoking an already-revoked grant is a no-op
// that still reports true.
func (r *ShareRepo) Revoke(ctx context.Context, token string) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE vic_shares SET is_active = false WHERE share_token = $1
	`, token)
	if err != nil {
		return false, &store.StorageError{Op: "revoke share grant", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &store.StorageError{Op: "revoke share grant", Err: err}
	}
	return n > 0, nil
}

func (r *ShareRepo) TouchLastAccessed(ctx context.Context, token string, at time.Time) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		UPDATE vic_shares SET last_accessed = $2 WHERE share_token = $1
	`, token, at); err != nil {
		return &store.StorageError{Op: "touch share grant", Err: err}
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*model.ShareGrant, error) {
	var (
		g     model.ShareGrant
		perms []byte
	)
	if err := row.Scan(
		&g.ID, &g.ShareToken, &g.TxHash, &g.PatientID, &g.SharedBy,
		&g.SharedWithHospital, &perms, &g.ExpiresAt, &g.IsActive,
		&g.CreatedAt, &g.LastAccessed,
	); err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &g.Permissions); err != nil {
			return nil, err
		}
	}
	return &g, nil
}
