package postgres

import (
	"context"
	"database/sql"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

type CredentialRepo struct {
	db *DB
}

func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) InsertTx(ctx context.Context, tx *sql.Tx, c *model.Credential) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO vic_issuances (tx_hash, block_number, hospital, patient_id, patient_name, diagnosis, treatment, doctor, record_date, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, c.TxHash, c.BlockNumber, c.Hospital, c.PatientID, c.PatientName,
		c.Diagnosis, c.Treatment, c.Doctor, c.RecordDate, c.Notes, c.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert credential", err)
	}
	return id, nil
}

func (r *CredentialRepo) FindByHash(ctx context.Context, txHash string) (*model.Credential, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var c model.Credential
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tx_hash, block_number, hospital, patient_id, patient_name, diagnosis, treatment, doctor, record_date, notes, created_at
		FROM vic_issuances
		WHERE tx_hash = $1
	`, txHash).Scan(
		&c.ID, &c.TxHash, &c.BlockNumber, &c.Hospital, &c.PatientID,
		&c.PatientName, &c.Diagnosis, &c.Treatment, &c.Doctor,
		&c.RecordDate, &c.Notes, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.StorageError{Op: "query credential", Err: err}
	}
	return &c, nil
}

func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_hash, block_number, hospital, patient_id, patient_name, diagnosis, treatment, doctor, record_date, notes, created_at
		FROM vic_issuances
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, &store.StorageError{Op: "query credentials", Err: err}
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(
			&c.ID, &c.TxHash, &c.BlockNumber, &c.Hospital, &c.PatientID,
			&c.PatientName, &c.Diagnosis, &c.Treatment, &c.Doctor,
			&c.RecordDate, &c.Notes, &c.CreatedAt,
		); err != nil {
			return nil, &store.StorageError{Op: "scan credential", Err: err}
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *CredentialRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vic_issuances`).Scan(&n); err != nil {
		return 0, &store.StorageError{Op: "count credentials", Err: err}
	}
	return n, nil
}
