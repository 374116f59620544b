package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/money"
	"kasirkredit/backend/internal/store"
)

// CreateCredit finances a sale for a customer. The financed amount is the sale
// total minus the down payment; it is split into the requested installments.
func (s *Service) CreateCredit(ctx context.Context, actor domain.Actor, req domain.CreditCreateRequest) (domain.CreditResponse, error) {
	storeID, err := s.storeFor(actor, req.StoreID)
	if err != nil {
		return domain.CreditResponse{}, err
	}
	if req.IntervalDays <= 0 {
		req.IntervalDays = s.intervalDays
	}
	if req.SaleTotalCents <= 0 || req.DownPaymentCents < 0 || req.DownPaymentCents >= req.SaleTotalCents {
		return domain.CreditResponse{}, fmt.Errorf("%w: down payment must be below the sale total", ledger.ErrInvalidSchedule)
	}

	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(req.CustomerID))
	if err != nil {
		return domain.CreditResponse{}, err
	}
	if !customer.Active {
		return domain.CreditResponse{}, fmt.Errorf("%w: customer %s is inactive", store.ErrInvalidInput, customer.ID)
	}

	today := ledger.Day(s.now())
	firstDue := today.AddDate(0, 0, req.IntervalDays)
	if strings.TrimSpace(req.FirstDueDate) != "" {
		firstDue, err = s.parseDay(req.FirstDueDate, "first_due_date")
		if err != nil {
			return domain.CreditResponse{}, err
		}
	}
	if firstDue.Before(today) {
		return domain.CreditResponse{}, fmt.Errorf("%w: first due date is in the past", ledger.ErrInvalidSchedule)
	}

	financed := req.SaleTotalCents - req.DownPaymentCents
	installments, err := ledger.BuildSchedule(financed, req.InstallmentCount, firstDue, req.IntervalDays)
	if err != nil {
		return domain.CreditResponse{}, err
	}

	created, err := s.repo.CreateCredit(ctx, domain.Credit{
		StoreID:          storeID,
		CustomerID:       customer.ID,
		SaleReference:    strings.TrimSpace(req.SaleReference),
		TotalCents:       financed,
		DownPaymentCents: req.DownPaymentCents,
		IntervalDays:     req.IntervalDays,
		FirstDueDate:     firstDue,
		Notes:            strings.TrimSpace(req.Notes),
		CreatedBy:        actor.Username,
		CreatedAt:        s.now().UTC(),
		Installments:     installments,
	})
	if err != nil {
		return domain.CreditResponse{}, err
	}

	s.invalidateSummary(ctx, created.StoreID)
	s.metrics.CreditTransition(domain.CreditStatusActive)
	s.logAudit(ctx, actor, created.StoreID, "create_credit", "credit", created.ID,
		fmt.Sprintf("customer=%s financed=%s installments=%d", customer.ID, money.Format(s.currency, financed), created.InstallmentCount))
	s.log.WithFields(logrus.Fields{
		"credit_id":    created.ID,
		"customer_id":  customer.ID,
		"total_cents":  created.TotalCents,
		"installments": created.InstallmentCount,
	}).Info("credit created")

	return s.creditResponse(*created, customer, today), nil
}

func (s *Service) GetCredit(ctx context.Context, id string, asOf string) (domain.CreditResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CreditResponse{}, store.ErrInvalidInput
	}
	day, err := s.parseDay(asOf, "as_of")
	if err != nil {
		return domain.CreditResponse{}, err
	}

	credit, err := s.repo.GetCredit(ctx, id)
	if err != nil {
		return domain.CreditResponse{}, err
	}
	customer, err := s.repo.GetCustomer(ctx, credit.CustomerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.CreditResponse{}, err
	}
	return s.creditResponse(*credit, customer, day), nil
}

func (s *Service) ListCredits(ctx context.Context, filter domain.CreditFilter) (domain.CreditListResponse, error) {
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	switch filter.Status {
	case "", domain.CreditStatusActive, domain.CreditStatusCompleted, domain.CreditStatusVoid:
	default:
		return domain.CreditListResponse{}, fmt.Errorf("%w: unknown credit status %q", store.ErrInvalidInput, filter.Status)
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}

	credits, err := s.repo.ListCredits(ctx, filter)
	if err != nil {
		return domain.CreditListResponse{}, err
	}
	today := ledger.Day(s.now())
	for i := range credits {
		credits[i].Installments = ledger.ProjectStatuses(credits[i].Status, credits[i].Installments, today)
	}
	return domain.CreditListResponse{Credits: credits}, nil
}

// VoidCredit cancels an active credit. Manager authorization is checked by
// the caller before this runs.
func (s *Service) VoidCredit(ctx context.Context, actor domain.Actor, req domain.VoidCreditRequest) (domain.VoidCreditResponse, error) {
	req.CreditID = strings.TrimSpace(req.CreditID)
	if req.CreditID == "" {
		return domain.VoidCreditResponse{}, store.ErrInvalidInput
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		req.Reason = "unspecified"
	}

	voidedAt := s.now().UTC()
	credit, err := s.repo.VoidCredit(ctx, req.CreditID, actor.Username, req.Reason, voidedAt)
	if err != nil {
		return domain.VoidCreditResponse{}, err
	}

	s.invalidateSummary(ctx, credit.StoreID)
	s.metrics.CreditTransition(domain.CreditStatusVoid)
	s.logAudit(ctx, actor, credit.StoreID, "void_credit", "credit", credit.ID, req.Reason)
	s.log.WithFields(logrus.Fields{"credit_id": credit.ID, "actor": actor.Username}).Info("credit voided")

	return domain.VoidCreditResponse{
		CreditID: credit.ID,
		Status:   credit.Status,
		VoidedAt: voidedAt.Format(time.RFC3339),
	}, nil
}

func (s *Service) creditResponse(credit domain.Credit, customer *domain.Customer, asOf time.Time) domain.CreditResponse {
	credit.Installments = ledger.ProjectStatuses(credit.Status, credit.Installments, asOf)
	return domain.CreditResponse{
		Credit:   credit,
		Customer: customer,
		Progress: ledger.Progress(credit.Installments, asOf),
		AsOf:     asOf.Format(dateLayout),
	}
}
