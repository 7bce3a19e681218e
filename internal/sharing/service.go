// Package sharing implements the scoped-disclosure engine: opaque bearer
// tokens granting time-limited, field-gated, revocable read access to one
// credential, with an append-only access audit trail.
package sharing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/hashing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/metrics"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

// unknownHospital is recorded in the audit trail when the reader did not
// identify itself.
const unknownHospital = "unknown"

// EventPublisher publishes access events to the configured stream. Publish
// failures are logged and never fail a resolution.
type EventPublisher interface {
	Publish(ctx context.Context, stream string, payload any) error
}

// AccessEvent is the message published for every successful resolution.
type AccessEvent struct {
	ShareToken         string    `json:"share_token"`
	TransactionHash    string    `json:"transaction_hash"`
	PatientID          string    `json:"patient_id"`
	AccessedByHospital string    `json:"accessed_by_hospital"`
	AccessedAt         time.Time `json:"accessed_at"`
}

// CreateShareRequest describes a new grant. Nil Permissions selects the
// default set; nil ExpiresInHours creates a never-expiring grant.
type CreateShareRequest struct {
	TransactionHash    string
	PatientID          string
	SharedBy           string
	SharedWithHospital *string
	Permissions        *model.FieldPermissions
	ExpiresInHours     *int
}

// AccessContext carries what is known about the reader of a share.
type AccessContext struct {
	Hospital  string
	IPAddress string
	UserAgent string
}

// ResolveResult is a successful share resolution.
type ResolveResult struct {
	Data        model.FilteredCredential
	Permissions model.FieldPermissions
	SharedBy    string
	CreatedAt   time.Time
	ExpiresAt   *time.Time
}

type Service struct {
	shares    store.ShareRepository
	creds     store.CredentialRepository
	logs      store.AccessLogRepository
	publisher EventPublisher
	stream    string
	logger    *slog.Logger
	nowFn     func() time.Time
	tokenFn   func() (string, error)
}

type Option func(*Service)

// WithClock injects the wall clock used for expiry evaluation and access
// bookkeeping.
func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) { s.nowFn = nowFn }
}

// WithTokenSource overrides token generation. Tests use this for
// deterministic tokens.
func WithTokenSource(tokenFn func() (string, error)) Option {
	return func(s *Service) { s.tokenFn = tokenFn }
}

func NewService(
	shares store.ShareRepository,
	creds store.CredentialRepository,
	logs store.AccessLogRepository,
	publisher EventPublisher,
	stream string,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		shares:    shares,
		creds:     creds,
		logs:      logs,
		publisher: publisher,
		stream:    stream,
		logger:    logger.With("component", "sharing"),
		nowFn:     time.Now,
		tokenFn:   hashing.NewShareToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateShare issues a new grant over a credential. The returned token is
// the entire capability: anyone holding it can read within the grant's
// permission scope until expiry or revocation.
func (s *Service) CreateShare(ctx context.Context, req CreateShareRequest) (*model.ShareGrant, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	token, err := s.tokenFn()
	if err != nil {
		return nil, err
	}

	perms := model.DefaultFieldPermissions()
	if req.Permissions != nil {
		perms = *req.Permissions
	}

	now := s.nowFn()
	var expiresAt *time.Time
	if req.ExpiresInHours != nil {
		t := now.Add(time.Duration(*req.ExpiresInHours) * time.Hour)
		expiresAt = &t
	}

	g := &model.ShareGrant{
		ShareToken:         token,
		TxHash:             req.TransactionHash,
		PatientID:          req.PatientID,
		SharedBy:           req.SharedBy,
		SharedWithHospital: req.SharedWithHospital,
		Permissions:        perms,
		ExpiresAt:          expiresAt,
		IsActive:           true,
		CreatedAt:          now,
	}
	if _, err := s.shares.Insert(ctx, g); err != nil {
		return nil, err
	}

	metrics.ShareCreationsTotal.Inc()
	s.logger.Info("share created",
		"tx_hash", req.TransactionHash,
		"patient_id", req.PatientID,
		"expires_at", expiresAt,
	)
	return g, nil
}

// Resolve reads a credential through a share token. Validation runs in fixed
// order and fails fast; a denied read leaves no trace in the audit trail. A
// successful read always appends exactly one access log entry and updates
// the grant's last-accessed time.
func (s *Service) Resolve(ctx context.Context, token string, access AccessContext) (*ResolveResult, error) {
	g, err := s.shares.FindByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.denied(ReasonNotFound)
	}
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	switch {
	case !g.IsActive:
		return nil, s.denied(ReasonRevoked)
	case g.Expired(now):
		return nil, s.denied(ReasonExpired)
	case g.SharedWithHospital != nil && *g.SharedWithHospital != access.Hospital:
		return nil, s.denied(ReasonHospitalNotAuthorized)
	}

	cred, err := s.creds.FindByHash(ctx, g.TxHash)
	if errors.Is(err, store.ErrNotFound) {
		// Data-integrity fault: the grant points at a credential that no
		// longer resolves.
		return nil, s.denied(ReasonCredentialMissing)
	}
	if err != nil {
		return nil, err
	}

	filtered := model.FilterCredential(cred, g.Permissions)
	snapshot, err := json.Marshal(filtered)
	if err != nil {
		return nil, err
	}

	hospital := access.Hospital
	if hospital == "" {
		hospital = unknownHospital
	}
	entry := &model.AccessLogEntry{
		ShareToken:         token,
		AccessedByHospital: hospital,
		AccessedFields:     snapshot,
		IPAddress:          optional(access.IPAddress),
		UserAgent:          optional(access.UserAgent),
		CreatedAt:          now,
	}
	if err := s.logs.Insert(ctx, entry); err != nil {
		return nil, err
	}
	metrics.AccessLogsWrittenTotal.Inc()

	if err := s.shares.TouchLastAccessed(ctx, token, now); err != nil {
		return nil, err
	}

	s.publishAccessEvent(ctx, g, hospital, now)

	metrics.ShareResolutionsTotal.WithLabelValues("success").Inc()
	return &ResolveResult{
		Data:        filtered,
		Permissions: g.Permissions,
		SharedBy:    g.SharedBy,
		CreatedAt:   g.CreatedAt,
		ExpiresAt:   g.ExpiresAt,
	}, nil
}

// Revoke deactivates a grant. Revocation is idempotent; the result reports
// whether a grant with the token exists at all.
func (s *Service) Revoke(ctx context.Context, token string) (bool, error) {
	found, err := s.shares.Revoke(ctx, token)
	if err != nil {
		return false, err
	}
	if found {
		metrics.ShareRevocationsTotal.Inc()
		s.logger.Info("share revoked", "share_token", token)
	}
	return found, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]model.ShareGrant, error) {
	if patientID == "" {
		return nil, &ValidationError{Field: "patient_id"}
	}
	return s.shares.ListByPatient(ctx, patientID)
}

func (s *Service) ListAccessLogs(ctx context.Context, f store.AccessLogFilter) ([]model.AccessLogEntry, error) {
	return s.logs.List(ctx, f)
}

func (s *Service) denied(reason Reason) error {
	metrics.ShareResolutionsTotal.WithLabelValues(outcomeLabel(reason)).Inc()
	return &ShareError{Reason: reason}
}

func (s *Service) publishAccessEvent(ctx context.Context, g *model.ShareGrant, hospital string, at time.Time) {
	if s.publisher == nil {
		return
	}
	event := AccessEvent{
		ShareToken:         g.ShareToken,
		TransactionHash:    g.TxHash,
		PatientID:          g.PatientID,
		AccessedByHospital: hospital,
		AccessedAt:         at,
	}
	if err := s.publisher.Publish(ctx, s.stream, event); err != nil {
		s.logger.Warn("access event publish failed", "share_token", g.ShareToken, "error", err)
	}
}

func outcomeLabel(reason Reason) string {
	switch reason {
	case ReasonNotFound:
		return "not_found"
	case ReasonRevoked:
		return "revoked"
	case ReasonExpired:
		return "expired"
	case ReasonHospitalNotAuthorized:
		return "hospital_not_authorized"
	case ReasonCredentialMissing:
		return "credential_missing"
	default:
		return "unknown"
	}
}

func (r *CreateShareRequest) validate() error {
	switch {
	case r.TransactionHash == "":
		return &ValidationError{Field: "transaction_hash"}
	case r.PatientID == "":
		return &ValidationError{Field: "patient_id"}
	case r.SharedBy == "":
		return &ValidationError{Field: "shared_by"}
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
