// Package ledger orchestrates VIC issuance: transaction id minting, block
// appending, and atomic persistence of the transaction and credential pair.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/domain/model"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/hashing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/metrics"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store"
)

const defaultMaxAttempts = 3

// IssueRequest is one hospital-submitted medical record.
type IssueRequest struct {
	Hospital    string              `json:"hospital"`
	PatientID   string              `json:"patient_id"`
	MedicalData model.MedicalRecord `json:"medical_data"`
}

// IssueResult identifies a successfully issued VIC.
type IssueResult struct {
	TransactionHash string
	BlockNumber     uint64
	PatientID       string
}

type Service struct {
	issuances   store.IssuanceStore
	logger      *slog.Logger
	nowFn       func() time.Time
	maxAttempts int
}

type Option func(*Service)

// WithClock injects the wall clock. Tests use this to control the timestamp
// nonce of transaction ids.
func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) { s.nowFn = nowFn }
}

// WithMaxAttempts bounds the retry-with-new-nonce loop on hash collisions.
func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

func NewService(issuances store.IssuanceStore, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		issuances:   issuances,
		logger:      logger.With("component", "ledger"),
		nowFn:       time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue mints a transaction id, appends a block, and persists the
// transaction and credential atomically. On a transaction hash collision the
// whole sequence is retried with a fresh timestamp nonce, bounded by the
// configured attempt limit.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if err := req.validate(); err != nil {
		metrics.IssuanceErrorsTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	timer := prometheus.NewTimer(metrics.IssuanceDuration)
	defer timer.ObserveDuration()

	payload, err := json.Marshal(req.MedicalData)
	if err != nil {
		metrics.IssuanceErrorsTotal.WithLabelValues("encode").Inc()
		return nil, &IssuanceError{Err: fmt.Errorf("encode medical data: %w", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		metrics.IssuanceAttemptsTotal.Inc()

		now := s.nowFn()
		txHash, err := hashing.TransactionID(req, now)
		if err != nil {
			metrics.IssuanceErrorsTotal.WithLabelValues("hash").Inc()
			return nil, &IssuanceError{Err: err}
		}

		hospital := req.Hospital
		patientID := req.PatientID
		t := &model.Transaction{
			TxHash:    txHash,
			ToAddress: req.PatientID,
			Amount:    1,
			Kind:      model.TxKindIssuance,
			Hospital:  &hospital,
			PatientID: &patientID,
			Payload:   payload,
			CreatedAt: now,
		}
		c := &model.Credential{
			TxHash:      txHash,
			Hospital:    req.Hospital,
			PatientID:   req.PatientID,
			PatientName: req.MedicalData.PatientName,
			Diagnosis:   req.MedicalData.Diagnosis,
			Treatment:   req.MedicalData.Treatment,
			Doctor:      req.MedicalData.Doctor,
			RecordDate:  req.MedicalData.Date,
			Notes:       req.MedicalData.Notes,
			CreatedAt:   now,
		}

		block, err := s.issuances.AppendIssuance(ctx, t, c)
		if errors.Is(err, store.ErrDuplicateHash) || errors.Is(err, store.ErrWriteConflict) {
			lastErr = err
			s.logger.Warn("issuance append conflict, retrying with fresh nonce",
				"tx_hash", txHash, "attempt", attempt, "error", err)
			continue
		}
		if err != nil {
			metrics.IssuanceErrorsTotal.WithLabelValues("storage").Inc()
			return nil, &IssuanceError{Err: err}
		}

		metrics.BlocksAppendedTotal.Inc()
		s.logger.Info("vic issued",
			"tx_hash", txHash,
			"block", block.SequenceIndex,
			"hospital", req.Hospital,
			"patient_id", req.PatientID,
		)
		return &IssueResult{
			TransactionHash: txHash,
			BlockNumber:     block.SequenceIndex,
			PatientID:       req.PatientID,
		}, nil
	}

	metrics.IssuanceErrorsTotal.WithLabelValues("conflict").Inc()
	return nil, &IssuanceError{
		Err: fmt.Errorf("issuance conflicted on all %d attempts: %w", s.maxAttempts, lastErr),
	}
}

func (r *IssueRequest) validate() error {
	required := []struct {
		field string
		value string
	}{
		{"hospital", r.Hospital},
		{"patient_id", r.PatientID},
		{"patient_name", r.MedicalData.PatientName},
		{"diagnosis", r.MedicalData.Diagnosis},
		{"treatment", r.MedicalData.Treatment},
		{"doctor", r.MedicalData.Doctor},
		{"date", r.MedicalData.Date},
	}
	for _, f := range required {
		if f.value == "" {
			return &ValidationError{Field: f.field}
		}
	}
	return nil
}
