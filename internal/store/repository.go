package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
)

// BlockRepository provides access to the append-only block chain.
type BlockRepository interface {
	// AppendTx reads the current chain head inside the caller's transaction,
	// computes the next block (sequence index, predecessor link, content
	// hash), inserts it, and returns it. The read-compute-insert sequence
	// must run under the caller's serializable transaction so concurrent
	// issuances cannot mint the same sequence index.
	AppendTx(ctx context.Context, tx *sql.Tx, blockTime time.Time) (*model.Block, error)
	List(ctx context.Context) ([]model.Block, error)
	Last(ctx context.Context) (*model.Block, error)
	Count(ctx context.Context) (int64, error)
}

// TransactionRepository provides access to ledger transactions.
type TransactionRepository interface {
	// InsertTx persists a transaction inside the caller's database
	// transaction. Returns ErrDuplicateHash when the tx_hash column's unique
	// constraint rejects the row.
	InsertTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) (int64, error)
	List(ctx context.Context) ([]model.Transaction, error)
	Count(ctx context.Context) (int64, error)
}

// CredentialRepository provides access to issued VICs. It exposes raw
// records only; permission filtering belongs to the sharing service.
type CredentialRepository interface {
	InsertTx(ctx context.Context, tx *sql.Tx, c *model.Credential) (int64, error)
	FindByHash(ctx context.Context, txHash string) (*model.Credential, error)
	List(ctx context.Context) ([]model.Credential, error)
	Count(ctx context.Context) (int64, error)
}

// IssuanceStore persists one issuance event — block, transaction, and
// credential — as a single atomic unit.
type IssuanceStore interface {
	// AppendIssuance appends a block and persists t and c referencing it
	// within one serializable database transaction. On return t.BlockID and
	// c.BlockNumber are populated from the new block.
	AppendIssuance(ctx context.Context, t *model.Transaction, c *model.Credential) (*model.Block, error)
}

// ShareRepository provides access to share grants.
type ShareRepository interface {
	Insert(ctx context.Context, g *model.ShareGrant) (int64, error)
	FindByToken(ctx context.Context, token string) (*model.ShareGrant, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.ShareGrant, error)
	// Revoke deactivates a grant idempotently and reports whether it exists.
	Revoke(ctx context.Context, token string) (bool, error)
	TouchLastAccessed(ctx context.Context, token string, at time.Time) error
}

// AccessLogFilter narrows an access log listing. Zero-value fields are not
// applied.
type AccessLogFilter struct {
	ShareToken string
	Hospital   string
}

// AccessLogRepository provides access to the append-only share access audit
// trail.
type AccessLogRepository interface {
	Insert(ctx context.Context, e *model.AccessLogEntry) error
	List(ctx context.Context, f AccessLogFilter) ([]model.AccessLogEntry, error)
}
