package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/ledger"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/sharing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/verify"
)

type stubIssuer struct {
	res *ledger.IssueResult
	err error
	got *ledger.IssueRequest
}

func (s *stubIssuer) Issue(ctx context.Context, req ledger.IssueRequest) (*ledger.IssueResult, error) {
	s.got = &req
	return s.res, s.err
}

type stubSharer struct {
	grant      *model.ShareGrant
	gotCreate  *sharing.CreateShareRequest
	createErr  error
	resolveRes *sharing.ResolveResult
	resolveErr error
	gotToken   string
	gotAccess  sharing.AccessContext
	revoked    bool
	grants     []model.ShareGrant
	logs       []model.AccessLogEntry
	gotFilter  store.AccessLogFilter
}

func (s *stubSharer) CreateShare(ctx context.Context, req sharing.CreateShareRequest) (*model.ShareGrant, error) {
	s.gotCreate = &req
	return s.grant, s.createErr
}

func (s *stubSharer) Resolve(ctx context.Context, token string, access sharing.AccessContext) (*sharing.ResolveResult, error) {
	s.gotToken = token
	s.gotAccess = access
	return s.resolveRes, s.resolveErr
}

func (s *stubSharer) Revoke(ctx context.Context, token string) (bool, error) {
	s.gotToken = token
	return s.revoked, nil
}

func (s *stubSharer) ListByPatient(ctx context.Context, patientID string) ([]model.ShareGrant, error) {
	return s.grants, nil
}

func (s *stubSharer) ListAccessLogs(ctx context.Context, f store.AccessLogFilter) ([]model.AccessLogEntry, error) {
	s.gotFilter = f
	return s.logs, nil
}

type stubVerifier struct {
	verifyRes *verify.VerificationResult
	blocks    []model.Block
	counts    *verify.Counts
	chain     *verify.ChainValidation
}

func (s *stubVerifier) Verify(ctx context.Context, txHash string) (*verify.VerificationResult, error) {
	return s.verifyRes, nil
}
func (s *stubVerifier) Blocks(ctx context.Context) ([]model.Block, error)        { return s.blocks, nil }
func (s *stubVerifier) Transactions(ctx context.Context) ([]model.Transaction, error) {
	return nil, nil
}
func (s *stubVerifier) Credentials(ctx context.Context) ([]model.Credential, error) {
	return nil, nil
}
func (s *stubVerifier) Counts(ctx context.Context) (*verify.Counts, error) { return s.counts, nil }
func (s *stubVerifier) ValidateChain(ctx context.Context) (*verify.ChainValidation, error) {
	return s.chain, nil
}

func newTestServer(issuer Issuer, sharer Sharer, verifier Verifier) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(issuer, sharer, verifier, logger)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIssueVIC_Success(t *testing.T) {
	issuer := &stubIssuer{res: &ledger.IssueResult{
		TransactionHash: "0xabc",
		BlockNumber:     3,
		PatientID:       "P001",
	}}
	srv := newTestServer(issuer, &stubSharer{}, &stubVerifier{})

	payload := `{"hospital":"Hospital A","patient_id":"P001","medical_data":{"patient_name":"Jane Roe","diagnosis":"Flu","treatment":"Rest","doctor":"Dr. Kim","date":"2024-03-01"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/issue-vic", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0xabc", body["transactionHash"])
	assert.Equal(t, float64(3), body["blockNumber"])
	assert.Equal(t, "P001", body["patientId"])

	require.NotNil(t, issuer.got)
	assert.Equal(t, "Hospital A", issuer.got.Hospital)
	assert.Equal(t, "Flu", issuer.got.MedicalData.Diagnosis)
}

func TestIssueVIC_ValidationErrorIsBadRequest(t *testing.T) {
	issuer := &stubIssuer{err: &ledger.ValidationError{Field: "diagnosis"}}
	srv := newTestServer(issuer, &stubSharer{}, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/issue-vic", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "diagnosis")
}

func TestIssueVIC_MalformedJSON(t *testing.T) {
	srv := newTestServer(&stubIssuer{}, &stubSharer{}, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/issue-vic", strings.NewReader(`{not-json`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify_Found(t *testing.T) {
	verifier := &stubVerifier{verifyRes: &verify.VerificationResult{
		Verified: true,
		Credential: &model.Credential{
			TxHash:      "0xabc",
			BlockNumber: 7,
			Hospital:    "Hospital A",
			PatientID:   "P001",
			PatientName: "Jane Roe",
			Diagnosis:   "Flu",
			Notes:       "none",
		},
	}}
	srv := newTestServer(&stubIssuer{}, &stubSharer{}, verifier)

	req := httptest.NewRequest(http.MethodGet, "/verify/0xabc", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["verified"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Flu", data["diagnosis"])
	assert.Equal(t, "none", data["notes"], "verify returns the unfiltered record")
}

func TestVerify_NotFound(t *testing.T) {
	verifier := &stubVerifier{verifyRes: &verify.VerificationResult{Verified: false}}
	srv := newTestServer(&stubIssuer{}, &stubSharer{}, verifier)

	req := httptest.NewRequest(http.MethodGet, "/verify/0xmissing", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["verified"])
	assert.Nil(t, body["data"])
}

func TestCreateShare_PartialPermissionsKeepDefaults(t *testing.T) {
	sharer := &stubSharer{grant: &model.ShareGrant{ShareToken: "VIC_token1"}}
	srv := newTestServer(&stubIssuer{}, sharer, &stubVerifier{})

	payload := `{"transaction_hash":"0xabc","patient_id":"P001","shared_by":"patient","access_permissions":{"notes":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/vic-share/create", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, sharer.gotCreate)
	require.NotNil(t, sharer.gotCreate.Permissions)

	perms := *sharer.gotCreate.Permissions
	assert.True(t, perms.Notes, "named key must be applied")
	assert.True(t, perms.Diagnosis, "unnamed clinical fields stay visible")
	assert.True(t, perms.Treatment)
	assert.True(t, perms.Doctor)
	assert.True(t, perms.Date)
}

func TestResolveShare_PassesAccessContext(t *testing.T) {
	diagnosis := "Flu"
	sharer := &stubSharer{resolveRes: &sharing.ResolveResult{
		Data: model.FilteredCredential{
			TransactionHash: "0xabc",
			PatientID:       "P001",
			Diagnosis:       &diagnosis,
		},
		Permissions: model.DefaultFieldPermissions(),
		SharedBy:    "patient",
		CreatedAt:   time.Now(),
	}}
	srv := newTestServer(&stubIssuer{}, sharer, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/vic-share/VIC_token1?hospital=Hospital+B", nil)
	req.Header.Set("User-Agent", "verifier/1.0")
	req.RemoteAddr = "10.0.0.7:51234"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VIC_token1", sharer.gotToken)
	assert.Equal(t, "Hospital B", sharer.gotAccess.Hospital)
	assert.Equal(t, "10.0.0.7", sharer.gotAccess.IPAddress)
	assert.Equal(t, "verifier/1.0", sharer.gotAccess.UserAgent)

	body := decode(t, rec)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Flu", data["diagnosis"])
	_, hasNotes := data["notes"]
	assert.False(t, hasNotes, "gated field must be absent, not null")
}

func TestResolveShare_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		reason sharing.Reason
		status int
	}{
		{sharing.ReasonNotFound, http.StatusNotFound},
		{sharing.ReasonRevoked, http.StatusGone},
		{sharing.ReasonExpired, http.StatusGone},
		{sharing.ReasonHospitalNotAuthorized, http.StatusForbidden},
		{sharing.ReasonCredentialMissing, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			sharer := &stubSharer{resolveErr: &sharing.ShareError{Reason: tc.reason}}
			srv := newTestServer(&stubIssuer{}, sharer, &stubVerifier{})

			req := httptest.NewRequest(http.MethodGet, "/api/vic-share/VIC_token1", nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tc.reason), body["error"])
		})
	}
}

func TestRevokeShare(t *testing.T) {
	sharer := &stubSharer{revoked: true}
	srv := newTestServer(&stubIssuer{}, sharer, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/api/vic-share/VIC_token1/revoke", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VIC_token1", sharer.gotToken)

	sharer.revoked = false
	req = httptest.NewRequest(http.MethodPost, "/api/vic-share/VIC_missing/revoke", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatientSharesRouteDoesNotShadowResolve(t *testing.T) {
	sharer := &stubSharer{grants: []model.ShareGrant{{ID: 7, ShareToken: "VIC_token1", PatientID: "P001"}}}
	srv := newTestServer(&stubIssuer{}, sharer, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/vic-share/patient/P001", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	shares := body["shares"].([]any)
	require.Len(t, shares, 1)
	share := shares[0].(map[string]any)
	assert.Equal(t, float64(7), share["id"])
	assert.Equal(t, "VIC_token1", share["share_token"])
	assert.Empty(t, sharer.gotToken, "resolve must not have been called")
}

func TestShareAccessLogs_FilterByToken(t *testing.T) {
	sharer := &stubSharer{logs: []model.AccessLogEntry{{ShareToken: "VIC_token1", AccessedByHospital: "Hospital A"}}}
	srv := newTestServer(&stubIssuer{}, sharer, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/vic-share/VIC_token1/access-logs", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "VIC_token1", sharer.gotFilter.ShareToken)
}

func TestHealth(t *testing.T) {
	verifier := &stubVerifier{counts: &verify.Counts{Blocks: 5, Transactions: 5, Credentials: 5}}
	srv := newTestServer(&stubIssuer{}, &stubSharer{}, verifier)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(5), body["blocks"])
}

func TestValidateChainEndpoint(t *testing.T) {
	broken := uint64(2)
	verifier := &stubVerifier{chain: &verify.ChainValidation{
		Valid:    false,
		Height:   4,
		BrokenAt: &broken,
		Reason:   "content hash mismatch",
	}}
	srv := newTestServer(&stubIssuer{}, &stubSharer{}, verifier)

	req := httptest.NewRequest(http.MethodGet, "/api/chain/validate", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, float64(2), body["broken_at"])
}
