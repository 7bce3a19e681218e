package postgres

import (
	"context"
	"database/sql"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

// IssuanceRepo persists a full issuance event atomically. It composes the
// block, transaction, and credential repos under one serializable database
// transaction so a caller never observes a transaction without its
// credential or a credential without its block.
type IssuanceRepo struct {
	db     *DB
	blocks *BlockRepo
	txns   *TransactionRepo
	creds  *CredentialRepo
}

func NewIssuanceRepo(db *DB, blocks *BlockRepo, txns *TransactionRepo, creds *CredentialRepo) *IssuanceRepo {
	return &IssuanceRepo{db: db, blocks: blocks, txns: txns, creds: creds}
}

func (r *IssuanceRepo) AppendIssuance(ctx context.Context, t *model.Transaction, c *model.Credential) (*model.Block, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, &store.StorageError{Op: "begin issuance tx", Err: err}
	}
	defer tx.Rollback()

	block, err := r.blocks.AppendTx(ctx, tx, t.CreatedAt)
	if err != nil {
		return nil, err
	}

	t.BlockID = &block.ID
	c.BlockNumber = block.SequenceIndex

	if _, err := r.txns.InsertTx(ctx, tx, t); err != nil {
		return nil, err
	}
	if _, err := r.creds.InsertTx(ctx, tx, c); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, mapWriteErr("commit issuance tx", err)
	}
	return block, nil
}
