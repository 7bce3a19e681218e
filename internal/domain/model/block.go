package model

import "time"

// GenesisPreviousHash is the previous-hash sentinel carried by the first
// block in the chain.
const GenesisPreviousHash = "0"

// Block is one entry of the append-only ledger. Blocks are created once per
// issuance and never mutated or deleted.
type Block struct {
	ID            int64     `db:"id"`
	SequenceIndex uint64    `db:"sequence_index"`
	BlockTime     time.Time `db:"block_time"`
	PreviousHash  string    `db:"previous_hash"`
	Hash          string    `db:"hash"`
	Nonce         uint64    `db:"nonce"`
	CreatedAt     time.Time `db:"created_at"`
}
