package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/money"
	"kasirkredit/backend/internal/store"
)

// ApplyPayment records a payment against a credit. Replaying an idempotency
// key returns the stored payment with Duplicate set and changes nothing.
func (s *Service) ApplyPayment(ctx context.Context, actor domain.Actor, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	req.CreditID = strings.TrimSpace(req.CreditID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	if req.Method == "" {
		req.Method = domain.PaymentMethodCash
	}

	if req.CreditID == "" {
		return domain.PaymentResponse{}, fmt.Errorf("%w: credit id is required", store.ErrInvalidInput)
	}
	if req.IdempotencyKey == "" {
		return domain.PaymentResponse{}, fmt.Errorf("%w: idempotency_key is required", store.ErrInvalidInput)
	}
	if !isSupportedPaymentMethod(req.Method) {
		return domain.PaymentResponse{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrInvalidInput, req.Method)
	}
	if req.AmountCents <= 0 {
		return domain.PaymentResponse{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	paidOn, err := s.parseDay(req.PaidOn, "paid_on")
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	out, err := s.repo.ApplyPayment(ctx, req.CreditID, store.PaymentIntent{
		IdempotencyKey: req.IdempotencyKey,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		Reference:      strings.TrimSpace(req.Reference),
		Notes:          strings.TrimSpace(req.Notes),
		PaidOn:         paidOn,
		RecordedBy:     actor.Username,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAllocationInvariant) {
			s.log.WithError(err).WithField("credit_id", req.CreditID).Error("payment rejected by ledger invariant check")
		}
		return domain.PaymentResponse{}, err
	}

	s.metrics.PaymentApplied(req.Method, out.Duplicate, out.Payment.AmountCents, out.Payment.ExcessCents)
	if !out.Duplicate {
		if out.Credit.Status == domain.CreditStatusCompleted {
			s.metrics.CreditTransition(domain.CreditStatusCompleted)
		}
		s.invalidateSummary(ctx, out.Credit.StoreID)
		s.logAudit(ctx, actor, out.Credit.StoreID, "apply_payment", "payment", out.Payment.ID,
			fmt.Sprintf("credit=%s applied=%s excess=%s", out.Credit.ID,
				money.Format(s.currency, out.Payment.AmountCents), money.Format(s.currency, out.Payment.ExcessCents)))
		s.log.WithFields(logrus.Fields{
			"payment_id":   out.Payment.ID,
			"credit_id":    out.Credit.ID,
			"applied":      out.Payment.AmountCents,
			"excess":       out.Payment.ExcessCents,
			"outstanding":  out.Credit.OutstandingCents,
			"credit_state": out.Credit.Status,
		}).Info("payment applied")
	}

	return domain.PaymentResponse{
		Payment:          out.Payment,
		ExcessCents:      out.Payment.ExcessCents,
		OutstandingCents: out.Credit.OutstandingCents,
		CreditStatus:     out.Credit.Status,
		Duplicate:        out.Duplicate,
	}, nil
}

func (s *Service) LookupPaymentByIdempotency(ctx context.Context, key string) (domain.PaymentLookupResponse, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.PaymentLookupResponse{}, store.ErrInvalidInput
	}

	payment, err := s.repo.FindPaymentByIdempotency(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.PaymentLookupResponse{Found: false}, nil
		}
		return domain.PaymentLookupResponse{}, err
	}
	return domain.PaymentLookupResponse{Found: true, Payment: payment}, nil
}

func (s *Service) ListPayments(ctx context.Context, creditID string) (domain.PaymentListResponse, error) {
	creditID = strings.TrimSpace(creditID)
	if creditID == "" {
		return domain.PaymentListResponse{}, store.ErrInvalidInput
	}
	payments, err := s.repo.ListPayments(ctx, creditID)
	if err != nil {
		return domain.PaymentListResponse{}, err
	}
	return domain.PaymentListResponse{CreditID: creditID, Payments: payments}, nil
}
