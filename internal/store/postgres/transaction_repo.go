package postgres

import (
	"context"
	"database/sql"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

type TransactionRepo struct {
	db *DB
}

func NewTransactionRepo(db *DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// InsertTx persists a transaction inside the caller's database transaction.
func (r *TransactionRepo) InsertTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO transactions (tx_hash, block_id, from_address, to_address, amount, kind, hospital, patient_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, t.TxHash, t.BlockID, t.FromAddress, t.ToAddress, t.Amount, t.Kind,
		t.Hospital, t.PatientID, nullableJSON(t.Payload), t.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, mapWriteErr("insert transaction", err)
	}
	return id, nil
}

func (r *TransactionRepo) List(ctx context.Context) ([]model.Transaction, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_hash, block_id, from_address, to_address, amount, kind, hospital, patient_id, payload, created_at
		FROM transactions
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, &store.StorageError{Op: "query transactions", Err: err}
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var payload []byte
		if err := rows.Scan(
			&t.ID, &t.TxHash, &t.BlockID, &t.FromAddress, &t.ToAddress,
			&t.Amount, &t.Kind, &t.Hospital, &t.PatientID, &payload, &t.CreatedAt,
		); err != nil {
			return nil, &store.StorageError{Op: "scan transaction", Err: err}
		}
		t.Payload = payload
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *TransactionRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, &store.StorageError{Op: "count transactions", Err: err}
	}
	return n, nil
}

// nullableJSON maps an empty payload to SQL NULL instead of invalid empty
// JSON.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
