package model

import (
	"encoding/json"
	"time"
)

// TxKind classifies ledger transactions.
type TxKind string

const (
	TxKindIssuance TxKind = "vic_issuance"
	TxKindReward   TxKind = "mining_reward"
)

// Transaction is the ledger-level record underlying a VIC issuance.
// TxHash is globally unique and immutable once created.
type Transaction struct {
	ID          int64           `db:"id"`
	TxHash      string          `db:"tx_hash"`
	BlockID     *int64          `db:"block_id"`
	FromAddress *string         `db:"from_address"`
	ToAddress   string          `db:"to_address"`
	Amount      float64         `db:"amount"`
	Kind        TxKind          `db:"kind"`
	Hospital    *string         `db:"hospital"`
	PatientID   *string         `db:"patient_id"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
}
