package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/hashing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

type BlockRepo struct {
	db *DB
}

func NewBlockRepo(db *DB) *BlockRepo {
	return &BlockRepo{db: db}
}

// AppendTx appends the next block inside the caller's transaction. The chain
// head is read FOR UPDATE so concurrent issuances serialize on it instead of
// computing duplicate sequence indexes; the unique constraint on
// sequence_index backstops the lock.
func (r *BlockRepo) AppendTx(ctx context.Context, tx *sql.Tx, blockTime time.Time) (*model.Block, error) {
	// The stored column has microsecond precision and the content hash covers
	// the timestamp, so the hashed value must be exactly what reads back.
	blockTime = blockTime.Truncate(time.Microsecond)

	var (
		lastIndex uint64
		lastHash  string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT sequence_index, hash FROM blocks
		ORDER BY sequence_index DESC
		LIMIT 1
		FOR UPDATE
	`).Scan(&lastIndex, &lastHash)

	nextIndex := uint64(0)
	previousHash := model.GenesisPreviousHash
	switch {
	case err == nil:
		nextIndex = lastIndex + 1
		previousHash = lastHash
	case err == sql.ErrNoRows:
		// Empty chain: this block is genesis.
	default:
		return nil, mapWriteErr("read chain head", err)
	}

	b := &model.Block{
		SequenceIndex: nextIndex,
		BlockTime:     blockTime,
		PreviousHash:  previousHash,
		Nonce:         0,
	}
	b.Hash = hashing.BlockHash(b.SequenceIndex, b.BlockTime, b.PreviousHash, b.Nonce)

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO blocks (sequence_index, block_time, previous_hash, hash, nonce)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, b.SequenceIndex, b.BlockTime, b.PreviousHash, b.Hash, b.Nonce).Scan(&b.ID, &b.CreatedAt); err != nil {
		return nil, mapWriteErr("insert block", err)
	}
	return b, nil
}

func (r *BlockRepo) List(ctx context.Context) ([]model.Block, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, sequence_index, block_time, previous_hash, hash, nonce, created_at
		FROM blocks
		ORDER BY sequence_index
	`)
	if err != nil {
		return nil, &store.StorageError{Op: "query blocks", Err: err}
	}
	defer rows.Close()

	var blocks []model.Block
	for rows.Next() {
		var b model.Block
		if err := rows.Scan(&b.ID, &b.SequenceIndex, &b.BlockTime, &b.PreviousHash, &b.Hash, &b.Nonce, &b.CreatedAt); err != nil {
			return nil, &store.StorageError{Op: "scan block", Err: err}
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (r *BlockRepo) Last(ctx context.Context) (*model.Block, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var b model.Block
	err := r.db.QueryRowContext(ctx, `
		SELECT id, sequence_index, block_time, previous_hash, hash, nonce, created_at
		FROM blocks
		ORDER BY sequence_index DESC
		LIMIT 1
	`).Scan(&b.ID, &b.SequenceIndex, &b.BlockTime, &b.PreviousHash, &b.Hash, &b.Nonce, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, &store.StorageError{Op: "query last block", Err: err}
	}
	return &b, nil
}

func (r *BlockRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks`).Scan(&n); err != nil {
		return 0, &store.StorageError{Op: "count blocks", Err: err}
	}
	return n, nil
}
