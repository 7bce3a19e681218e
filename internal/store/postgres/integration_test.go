//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/hashing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store/postgres"
)

// testDB returns a migrated *postgres.DB. It checks the TEST_DB_URL
// environment variable first; if unset, it falls back to a Docker-based
// ephemeral PostgreSQL via testcontainers.
func testDB(t *testing.T) *postgres.DB {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url != "" {
		db, err := postgres.New(postgres.Config{
			URL:             url,
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Minute,
		})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}
	return setupTestContainer(t)
}

func issuanceRepo(db *postgres.DB) *postgres.IssuanceRepo {
	return postgres.NewIssuanceRepo(db,
		postgres.NewBlockRepo(db),
		postgres.NewTransactionRepo(db),
		postgres.NewCredentialRepo(db),
	)
}

func sampleIssuance(txHash string) (*model.Transaction, *model.Credential) {
	hospital := "Hospital A"
	patientID := "P-" + uuid.NewString()[:8]
	t := &model.Transaction{
		TxHash:    txHash,
		ToAddress: patientID,
		Amount:    1,
		Kind:      model.TxKindIssuance,
		Hospital:  &hospital,
		PatientID: &patientID,
		Payload:   json.RawMessage(`{"diagnosis":"Flu"}`),
		CreatedAt: time.Now().UTC(),
	}
	c := &model.Credential{
		TxHash:      txHash,
		Hospital:    hospital,
		PatientID:   patientID,
		PatientName: "Jane Roe",
		Diagnosis:   "Flu",
		Treatment:   "Rest",
		Doctor:      "Dr. Kim",
		RecordDate:  "2024-03-01",
		Notes:       "none",
		CreatedAt:   time.Now().UTC(),
	}
	return t, c
}

// ---------- IssuanceRepo ----------

func TestIssuanceRepo_AppendsLinkedBlocks(t *testing.T) {
	db := testDB(t)
	repo := issuanceRepo(db)
	blocks := postgres.NewBlockRepo(db)
	creds := postgres.NewCredentialRepo(db)
	ctx := context.Background()

	before, err := blocks.Count(ctx)
	require.NoError(t, err)

	var appended []*model.Block
	for i := 0; i < 3; i++ {
		txHash := "0xtest" + uuid.NewString()[:8]
		txn, cred := sampleIssuance(txHash)

		block, err := repo.AppendIssuance(ctx, txn, cred)
		require.NoError(t, err)
		appended = append(appended, block)

		// The composed write stamps the block linkage back onto both rows.
		require.NotNil(t, txn.BlockID)
		assert.Equal(t, block.ID, *txn.BlockID)
		assert.Equal(t, block.SequenceIndex, cred.BlockNumber)

		found, err := creds.FindByHash(ctx, txHash)
		require.NoError(t, err)
		assert.Equal(t, cred.Diagnosis, found.Diagnosis)
		assert.Equal(t, block.SequenceIndex, found.BlockNumber)
	}

	all, err := blocks.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, int(before)+3)

	for i, b := range all {
		assert.Equal(t, uint64(i), b.SequenceIndex, "sequence indexes must be contiguous from zero")
		if i == 0 {
			assert.Equal(t, model.GenesisPreviousHash, b.PreviousHash)
		} else {
			assert.Equal(t, all[i-1].Hash, b.PreviousHash)
		}
		assert.Equal(t, hashing.BlockHash(b.SequenceIndex, b.BlockTime, b.PreviousHash, b.Nonce), b.Hash)
	}

	last, err := blocks.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, appended[2].Hash, last.Hash)
}

func TestIssuanceRepo_DuplicateHashReturnsErrDuplicateHash(t *testing.T) {
	db := testDB(t)
	repo := issuanceRepo(db)
	ctx := context.Background()

	txHash := "0xdup" + uuid.NewString()[:8]

	txn, cred := sampleIssuance(txHash)
	_, err := repo.AppendIssuance(ctx, txn, cred)
	require.NoError(t, err)

	txn2, cred2 := sampleIssuance(txHash)
	_, err = repo.AppendIssuance(ctx, txn2, cred2)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicateHash)
}

func TestIssuanceRepo_ConcurrentAppendsKeepChainIntact(t *testing.T) {
	db := testDB(t)
	repo := issuanceRepo(db)
	blocks := postgres.NewBlockRepo(db)
	ctx := context.Background()

	before, err := blocks.Count(ctx)
	require.NoError(t, err)

	// Concurrent appends contend on the chain head; losers surface a
	// retryable conflict, exactly what the issuance service retries on.
	// Mirror that retry here.
	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastErr error
			for attempt := 0; attempt < writers+1; attempt++ {
				txn, cred := sampleIssuance("0xconc" + uuid.NewString()[:12])
				if _, lastErr = repo.AppendIssuance(ctx, txn, cred); lastErr == nil {
					return
				}
			}
			errCh <- lastErr
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	all, err := blocks.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, int(before)+writers)

	// Every block, including the concurrently appended tail, must link to its
	// predecessor with no gaps or forks.
	for i := 1; i < len(all); i++ {
		assert.Equal(t, all[i-1].SequenceIndex+1, all[i].SequenceIndex)
		assert.Equal(t, all[i-1].Hash, all[i].PreviousHash)
	}
}

// ---------- ShareRepo ----------

func TestShareRepo_InsertFindRoundtrip(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewShareRepo(db)
	ctx := context.Background()

	hospital := "Hospital B"
	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Microsecond)
	token := "VIC_" + uuid.NewString()

	perms := model.DefaultFieldPermissions()
	perms.Notes = true

	id, err := repo.Insert(ctx, &model.ShareGrant{
		ShareToken:         token,
		TxHash:             "0xabc",
		PatientID:          "P001",
		SharedBy:           "patient",
		SharedWithHospital: &hospital,
		Permissions:        perms,
		ExpiresAt:          &expires,
		IsActive:           true,
		CreatedAt:          time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	found, err := repo.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, token, found.ShareToken)
	assert.Equal(t, perms, found.Permissions)
	require.NotNil(t, found.SharedWithHospital)
	assert.Equal(t, hospital, *found.SharedWithHospital)
	require.NotNil(t, found.ExpiresAt)
	assert.WithinDuration(t, expires, *found.ExpiresAt, time.Millisecond)
	assert.True(t, found.IsActive)
	assert.Nil(t, found.LastAccessed)
}

func TestShareRepo_DuplicateTokenRejected(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewShareRepo(db)
	ctx := context.Background()

	token := "VIC_" + uuid.NewString()
	g := &model.ShareGrant{
		ShareToken:  token,
		TxHash:      "0xabc",
		PatientID:   "P001",
		SharedBy:    "patient",
		Permissions: model.DefaultFieldPermissions(),
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := repo.Insert(ctx, g)
	require.NoError(t, err)

	_, err = repo.Insert(ctx, g)
	assert.ErrorIs(t, err, store.ErrDuplicateHash)
}

func TestShareRepo_RevokeAndTouch(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewShareRepo(db)
	ctx := context.Background()

	token := "VIC_" + uuid.NewString()
	_, err := repo.Insert(ctx, &model.ShareGrant{
		ShareToken:  token,
		TxHash:      "0xabc",
		PatientID:   "P001",
		SharedBy:    "patient",
		Permissions: model.DefaultFieldPermissions(),
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	accessedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.TouchLastAccessed(ctx, token, accessedAt))

	found, err := repo.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, found)

	// Revoking again is a no-op that still reports the grant exists.
	found, err = repo.Revoke(ctx, token)
	require.NoError(t, err)
	assert.True(t, found)

	found2, err := repo.Revoke(ctx, "VIC_missing")
	require.NoError(t, err)
	assert.False(t, found2)

	g, err := repo.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, g.IsActive)
	require.NotNil(t, g.LastAccessed)
	assert.WithinDuration(t, accessedAt, *g.LastAccessed, time.Millisecond)
}

func TestShareRepo_FindMissingToken(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewShareRepo(db)

	_, err := repo.FindByToken(context.Background(), "VIC_"+uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ---------- AccessLogRepo ----------

func TestAccessLogRepo_InsertAndFilter(t *testing.T) {
	db := testDB(t)
	repo := postgres.NewAccessLogRepo(db)
	ctx := context.Background()

	tokenA := "VIC_" + uuid.NewString()
	tokenB := "VIC_" + uuid.NewString()
	ip := "10.0.0.7"
	ua := "verifier/1.0"

	for _, e := range []*model.AccessLogEntry{
		{ShareToken: tokenA, AccessedByHospital: "Hospital A", AccessedFields: json.RawMessage(`{"diagnosis":"Flu"}`), IPAddress: &ip, UserAgent: &ua, CreatedAt: time.Now().UTC()},
		{ShareToken: tokenA, AccessedByHospital: "Hospital B", AccessedFields: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()},
		{ShareToken: tokenB, AccessedByHospital: "Hospital A", AccessedFields: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()},
	} {
		require.NoError(t, repo.Insert(ctx, e))
		assert.NotEqual(t, uuid.Nil, e.ID, "insert assigns an id when the caller leaves it zero")
	}

	byToken, err := repo.List(ctx, store.AccessLogFilter{ShareToken: tokenA})
	require.NoError(t, err)
	require.Len(t, byToken, 2)
	for _, e := range byToken {
		assert.Equal(t, tokenA, e.ShareToken)
	}

	both, err := repo.List(ctx, store.AccessLogFilter{ShareToken: tokenA, Hospital: "Hospital A"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	require.NotNil(t, both[0].IPAddress)
	assert.Equal(t, ip, *both[0].IPAddress)
	require.NotNil(t, both[0].UserAgent)
	assert.Equal(t, ua, *both[0].UserAgent)
}

// ---------- migrations ----------

func TestRunMigrations_Idempotent(t *testing.T) {
	if os.Getenv("TEST_DB_URL") != "" {
		t.Skip("requires an ephemeral database")
	}
	db := setupTestContainer(t)

	// setupTestContainer already ran the migrations once; a second run must
	// skip every recorded version without error.
	err := db.RunMigrations("../../../migrations")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}
