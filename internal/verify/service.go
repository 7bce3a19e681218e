// Package verify is the query surface of the ledger: unfiltered credential
// lookups for the issuing/owning context, chain and transaction listings,
// and an explicit chain integrity check. Third-party disclosure goes through
// the sharing engine instead.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/cache"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/hashing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/metrics"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

// VerificationResult reports a credential lookup. Credential is nil when
// Verified is false.
type VerificationResult struct {
	Verified   bool
	Credential *model.Credential
}

// ChainValidation reports an explicit integrity check over the stored chain.
// This is never run on the ordinary read path.
type ChainValidation struct {
	Valid    bool
	Height   int64
	BrokenAt *uint64
	Reason   string
}

// Counts summarizes ledger size for the health surface.
type Counts struct {
	Blocks       int64
	Transactions int64
	Credentials  int64
}

type Service struct {
	blocks store.BlockRepository
	txns   store.TransactionRepository
	creds  store.CredentialRepository
	// credCache is a read-through cache over immutable credentials, the
	// single durable store stays the source of truth.
	credCache *cache.LRU[string, *model.Credential]
	logger    *slog.Logger
}

func NewService(
	blocks store.BlockRepository,
	txns store.TransactionRepository,
	creds store.CredentialRepository,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		blocks:    blocks,
		txns:      txns,
		creds:     creds,
		credCache: cache.NewLRU[string, *model.Credential](cacheSize, cacheTTL),
		logger:    logger.With("component", "verify"),
	}
}

// Verify looks up the full, unfiltered credential behind a transaction hash.
// A miss is not an error: the result simply reports Verified false.
func (s *Service) Verify(ctx context.Context, txHash string) (*VerificationResult, error) {
	if c, ok := s.credCache.Get(txHash); ok {
		metrics.CredentialCacheHitsTotal.Inc()
		metrics.VerificationsTotal.WithLabelValues("verified").Inc()
		return &VerificationResult{Verified: true, Credential: c}, nil
	}

	c, err := s.creds.FindByHash(ctx, txHash)
	if errors.Is(err, store.ErrNotFound) {
		metrics.VerificationsTotal.WithLabelValues("not_found").Inc()
		return &VerificationResult{Verified: false}, nil
	}
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.credCache.Put(txHash, c)
	metrics.VerificationsTotal.WithLabelValues("verified").Inc()
	return &VerificationResult{Verified: true, Credential: c}, nil
}

func (s *Service) Blocks(ctx context.Context) ([]model.Block, error) {
	return s.blocks.List(ctx)
}

func (s *Service) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return s.txns.List(ctx)
}

func (s *Service) Credentials(ctx context.Context) ([]model.Credential, error) {
	return s.creds.List(ctx)
}

func (s *Service) Counts(ctx context.Context) (*Counts, error) {
	blocks, err := s.blocks.Count(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.txns.Count(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := s.creds.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Counts{Blocks: blocks, Transactions: txns, Credentials: creds}, nil
}

// ValidateChain recomputes every block hash and predecessor link and reports
// the first mismatch. It is an opt-in operation; stored hashes are otherwise
// trusted on read.
func (s *Service) ValidateChain(ctx context.Context) (*ChainValidation, error) {
	blocks, err := s.blocks.List(ctx)
	if err != nil {
		return nil, err
	}

	v := &ChainValidation{Valid: true, Height: int64(len(blocks))}
	for i, b := range blocks {
		if b.SequenceIndex != uint64(i) {
			return brokenAt(v, b.SequenceIndex, "sequence index gap"), nil
		}
		expectedPrev := model.GenesisPreviousHash
		if i > 0 {
			expectedPrev = blocks[i-1].Hash
		}
		if b.PreviousHash != expectedPrev {
			return brokenAt(v, b.SequenceIndex, "previous hash mismatch"), nil
		}
		if recomputed := hashing.BlockHash(b.SequenceIndex, b.BlockTime, b.PreviousHash, b.Nonce); recomputed != b.Hash {
			return brokenAt(v, b.SequenceIndex, "content hash mismatch"), nil
		}
	}
	return v, nil
}

func brokenAt(v *ChainValidation, index uint64, reason string) *ChainValidation {
	v.Valid = false
	v.BrokenAt = &index
	v.Reason = reason
	return v
}
