// Package api exposes the core services over a single JSON HTTP surface
// consumed by hospital issuance clients, verifiers, and patients managing
// shares.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/ledger"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/metrics"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/sharing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/verify"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Issuer is the issuance surface the server depends on. Satisfied by
// *ledger.Service; tests can provide a simple mock.
type Issuer interface {
	Issue(ctx context.Context, req ledger.IssueRequest) (*ledger.IssueResult, error)
}

// Sharer is the share management surface. Satisfied by *sharing.Service.
type Sharer interface {
	CreateShare(ctx context.Context, req sharing.CreateShareRequest) (*model.ShareGrant, error)
	Resolve(ctx context.Context, token string, access sharing.AccessContext) (*sharing.ResolveResult, error)
	Revoke(ctx context.Context, token string) (bool, error)
	ListByPatient(ctx context.Context, patientID string) ([]model.ShareGrant, error)
	ListAccessLogs(ctx context.Context, f store.AccessLogFilter) ([]model.AccessLogEntry, error)
}

// Verifier is the query surface. Satisfied by *verify.Service.
type Verifier interface {
	Verify(ctx context.Context, txHash string) (*verify.VerificationResult, error)
	Blocks(ctx context.Context) ([]model.Block, error)
	Transactions(ctx context.Context) ([]model.Transaction, error)
	Credentials(ctx context.Context) ([]model.Credential, error)
	Counts(ctx context.Context) (*verify.Counts, error)
	ValidateChain(ctx context.Context) (*verify.ChainValidation, error)
}

type Server struct {
	issuer   Issuer
	sharer   Sharer
	verifier Verifier
	logger   *slog.Logger
}

func NewServer(issuer Issuer, sharer Sharer, verifier Verifier, logger *slog.Logger) *Server {
	return &Server{
		issuer:   issuer,
		sharer:   sharer,
		verifier: verifier,
		logger:   logger.With("component", "api"),
	}
}

// Handler returns the HTTP handler for the public API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.instrument("root", s.handleRoot))
	mux.HandleFunc("GET /api/health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("POST /api/issue-vic", s.instrument("issue_vic", s.handleIssueVIC))
	mux.HandleFunc("GET /verify/{transactionHash}", s.instrument("verify", s.handleVerify))
	mux.HandleFunc("GET /api/transactions", s.instrument("transactions", s.handleListTransactions))
	mux.HandleFunc("GET /api/vic-issuances", s.instrument("vic_issuances", s.handleListCredentials))
	mux.HandleFunc("GET /api/blocks", s.instrument("blocks", s.handleListBlocks))
	mux.HandleFunc("GET /api/chain/validate", s.instrument("chain_validate", s.handleValidateChain))
	mux.HandleFunc("POST /api/vic-share/create", s.instrument("share_create", s.handleCreateShare))
	mux.HandleFunc("GET /api/vic-share/{shareToken}", s.instrument("share_resolve", s.handleResolveShare))
	mux.HandleFunc("GET /api/vic-share/patient/{patientID}", s.instrument("share_list", s.handleListPatientShares))
	mux.HandleFunc("POST /api/vic-share/{shareToken}/revoke", s.instrument("share_revoke", s.handleRevokeShare))
	mux.HandleFunc("GET /api/vic-share/{shareToken}/access-logs", s.instrument("share_access_logs", s.handleShareAccessLogs))
	mux.HandleFunc("GET /api/access-logs", s.instrument("access_logs", s.handleAccessLogs))
	return AuditMiddleware(s.logger, mux)
}

// instrument records request duration per route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(sw, r)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(sw.statusCode)).
			Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "DID Blockchain API Server",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.verifier.Counts(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"blocks":        counts.Blocks,
		"transactions":  counts.Transactions,
		"vic_issuances": counts.Credentials,
	})
}

func (s *Server) handleIssueVIC(w http.ResponseWriter, r *http.Request) {
	var req ledger.IssueRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.issuer.Issue(r.Context(), req)
	if err != nil {
		var verr *ledger.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, failure(verr.Error()))
			return
		}
		s.logger.Error("issuance failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, failure("issuance failed"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":         true,
		"transactionHash": res.TransactionHash,
		"blockNumber":     res.BlockNumber,
		"patientId":       res.PatientID,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	txHash := r.PathValue("transactionHash")

	res, err := s.verifier.Verify(r.Context(), txHash)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !res.Verified {
		writeJSON(w, http.StatusOK, map[string]any{
			"verified": false,
			"message":  "VIC not found in blockchain",
			"data":     nil,
		})
		return
	}

	c := res.Credential
	writeJSON(w, http.StatusOK, map[string]any{
		"verified": true,
		"message":  "VIC verified successfully",
		"data": map[string]any{
			"transaction_hash": c.TxHash,
			"block_number":     c.BlockNumber,
			"hospital":         c.Hospital,
			"patient_id":       c.PatientID,
			"patient_name":     c.PatientName,
			"diagnosis":        c.Diagnosis,
			"treatment":        c.Treatment,
			"doctor":           c.Doctor,
			"date":             c.RecordDate,
			"notes":            c.Notes,
			"created_at":       c.CreatedAt,
		},
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := s.verifier.Transactions(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(txns))
	for _, t := range txns {
		out = append(out, map[string]any{
			"transaction_hash": t.TxHash,
			"from_address":     t.FromAddress,
			"to_address":       t.ToAddress,
			"amount":           t.Amount,
			"transaction_type": t.Kind,
			"hospital":         t.Hospital,
			"patient_id":       t.PatientID,
			"created_at":       t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.verifier.Credentials(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(creds))
	for _, c := range creds {
		out = append(out, map[string]any{
			"transaction_hash": c.TxHash,
			"block_number":     c.BlockNumber,
			"hospital":         c.Hospital,
			"patient_id":       c.PatientID,
			"patient_name":     c.PatientName,
			"diagnosis":        c.Diagnosis,
			"treatment":        c.Treatment,
			"doctor":           c.Doctor,
			"date":             c.RecordDate,
			"notes":            c.Notes,
			"created_at":       c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"vic_issuances": out})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := s.verifier.Blocks(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, map[string]any{
			"index":         b.SequenceIndex,
			"timestamp":     b.BlockTime,
			"previous_hash": b.PreviousHash,
			"hash":          b.Hash,
			"nonce":         b.Nonce,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": out})
}

func (s *Server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	v, err := s.verifier.ValidateChain(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	resp := map[string]any{
		"valid":  v.Valid,
		"height": v.Height,
	}
	if !v.Valid {
		resp["broken_at"] = v.BrokenAt
		resp["reason"] = v.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

type createShareBody struct {
	TransactionHash    string                  `json:"transaction_hash"`
	PatientID          string                  `json:"patient_id"`
	SharedBy           string                  `json:"shared_by"`
	SharedWithHospital *string                 `json:"shared_with_hospital"`
	AccessPermissions  *model.FieldPermissions `json:"access_permissions"`
	ExpiresInHours     *int                    `json:"expires_in_hours"`
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var body createShareBody
	if !s.decodeBody(w, r, &body) {
		return
	}

	g, err := s.sharer.CreateShare(r.Context(), sharing.CreateShareRequest{
		TransactionHash:    body.TransactionHash,
		PatientID:          body.PatientID,
		SharedBy:           body.SharedBy,
		SharedWithHospital: body.SharedWithHospital,
		Permissions:        body.AccessPermissions,
		ExpiresInHours:     body.ExpiresInHours,
	})
	if err != nil {
		var verr *sharing.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, failure(verr.Error()))
			return
		}
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":     true,
		"share_token": g.ShareToken,
		"expires_at":  g.ExpiresAt,
		"message":     "VIC share created successfully",
	})
}

func (s *Server) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("shareToken")
	access := sharing.AccessContext{
		Hospital:  r.URL.Query().Get("hospital"),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}

	res, err := s.sharer.Resolve(r.Context(), token, access)
	if err != nil {
		var serr *sharing.ShareError
		if errors.As(err, &serr) {
			writeJSON(w, shareErrorStatus(serr.Reason), failure(serr.Error()))
			return
		}
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"data":        res.Data,
		"permissions": res.Permissions,
		"shared_by":   res.SharedBy,
		"created_at":  res.CreatedAt,
		"expires_at":  res.ExpiresAt,
	})
}

func (s *Server) handleListPatientShares(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("patientID")

	grants, err := s.sharer.ListByPatient(r.Context(), patientID)
	if err != nil {
		var verr *sharing.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, failure(verr.Error()))
			return
		}
		s.internalError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(grants))
	for _, g := range grants {
		out = append(out, map[string]any{
			"id":                        g.ID,
			"share_token":               g.ShareToken,
			"original_transaction_hash": g.TxHash,
			"shared_by":                 g.SharedBy,
			"shared_with_hospital":      g.SharedWithHospital,
			"access_permissions":        g.Permissions,
			"expires_at":                g.ExpiresAt,
			"is_active":                 g.IsActive,
			"created_at":                g.CreatedAt,
			"last_accessed":             g.LastAccessed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shares": out})
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("shareToken")

	found, err := s.sharer.Revoke(r.Context(), token)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, failure("share token not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "VIC share revoked successfully",
	})
}

func (s *Server) handleShareAccessLogs(w http.ResponseWriter, r *http.Request) {
	s.writeAccessLogs(w, r, store.AccessLogFilter{ShareToken: r.PathValue("shareToken")})
}

func (s *Server) handleAccessLogs(w http.ResponseWriter, r *http.Request) {
	s.writeAccessLogs(w, r, store.AccessLogFilter{Hospital: r.URL.Query().Get("hospital")})
}

func (s *Server) writeAccessLogs(w http.ResponseWriter, r *http.Request, f store.AccessLogFilter) {
	logs, err := s.sharer.ListAccessLogs(r.Context(), f)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		out = append(out, map[string]any{
			"id":                   l.ID,
			"share_token":          l.ShareToken,
			"accessed_by_hospital": l.AccessedByHospital,
			"accessed_data":        json.RawMessage(l.AccessedFields),
			"ip_address":           l.IPAddress,
			"user_agent":           l.UserAgent,
			"created_at":           l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "logs": out})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid JSON body"))
		return false
	}
	return true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, http.StatusInternalServerError, failure("internal error"))
}

func shareErrorStatus(reason sharing.Reason) int {
	switch reason {
	case sharing.ReasonNotFound:
		return http.StatusNotFound
	case sharing.ReasonRevoked, sharing.ReasonExpired:
		return http.StatusGone
	case sharing.ReasonHospitalNotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
