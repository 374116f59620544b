package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasirkredit/backend/internal/archive"
	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/report"
	"kasirkredit/backend/internal/store"
)

const (
	maxDueSoonDays   = 90
	archiveURLExpiry = 15 * time.Minute
)

// OverdueSweep lists installments past due as of asOf (today when empty).
// A positive limit caps the listed rows; totals still cover every overdue
// installment. It never writes.
func (s *Service) OverdueSweep(ctx context.Context, asOf string, customerID string, limit int) (domain.SweepResponse, error) {
	day, err := s.parseDay(asOf, "as_of")
	if err != nil {
		return domain.SweepResponse{}, err
	}
	if limit < 0 {
		limit = 0
	}

	page, err := s.repo.ListOverdueInstallments(ctx, day, strings.TrimSpace(customerID), limit)
	if err != nil {
		return domain.SweepResponse{}, err
	}
	return sweepResponse(day, page), nil
}

// DueSoon lists pending installments falling due within the next days,
// today included.
func (s *Service) DueSoon(ctx context.Context, asOf string, days int, customerID string, limit int) (domain.SweepResponse, error) {
	day, err := s.parseDay(asOf, "as_of")
	if err != nil {
		return domain.SweepResponse{}, err
	}
	if days == 0 {
		days = 7
	}
	if days < 0 || days > maxDueSoonDays {
		return domain.SweepResponse{}, fmt.Errorf("%w: days must be between 1 and %d", store.ErrInvalidInput, maxDueSoonDays)
	}

	page, err := s.repo.ListInstallmentsDue(ctx, domain.InstallmentQuery{
		From:       day,
		To:         day.AddDate(0, 0, days),
		CustomerID: strings.TrimSpace(customerID),
		Limit:      limit,
	})
	if err != nil {
		return domain.SweepResponse{}, err
	}
	return sweepResponse(day, page), nil
}

// DebtSummary aggregates one store's ledger as of a day. The summary is cached
// per store until a credit in that store changes.
func (s *Service) DebtSummary(ctx context.Context, actor domain.Actor, storeID string, asOf string) (domain.DebtSummary, error) {
	storeID, err := s.storeFor(actor, storeID)
	if err != nil {
		return domain.DebtSummary{}, err
	}
	day, err := s.parseDay(asOf, "as_of")
	if err != nil {
		return domain.DebtSummary{}, err
	}
	key := day.Format(dateLayout)

	if cached, ok, err := s.summaries.Get(ctx, storeID, key); err != nil {
		s.log.WithError(err).WithField("store_id", storeID).Warn("debt summary cache read failed")
	} else if ok {
		return *cached, nil
	}

	summary, err := s.repo.GetDebtSummary(ctx, storeID, day)
	if err != nil {
		return domain.DebtSummary{}, err
	}
	summary.StoreID = storeID
	summary.AsOf = key

	if err := s.summaries.Set(ctx, summary, s.summaryTTL); err != nil {
		s.log.WithError(err).WithField("store_id", storeID).Warn("debt summary cache write failed")
	}
	return summary, nil
}

func (s *Service) TopDebtors(ctx context.Context, asOf string, limit int) ([]domain.CustomerDebt, error) {
	day, err := s.parseDay(asOf, "as_of")
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return s.repo.ListTopDebtors(ctx, day, limit)
}

// ExportOverdueWorkbook returns the overdue sweep as an XLSX file and its name.
func (s *Service) ExportOverdueWorkbook(ctx context.Context, actor domain.Actor, asOf string) ([]byte, string, error) {
	sweep, err := s.OverdueSweep(ctx, asOf, "", 0)
	if err != nil {
		return nil, "", err
	}
	data, err := report.OverdueWorkbook(sweep.AsOf, actor.Username, sweep.Installments)
	if err != nil {
		return nil, "", fmt.Errorf("build overdue workbook: %w", err)
	}
	return data, report.OverdueFileName(sweep.AsOf), nil
}

// ArchiveOverdueWorkbook uploads the overdue workbook to object storage and
// returns a temporary download link.
func (s *Service) ArchiveOverdueWorkbook(ctx context.Context, actor domain.Actor, asOf string) (domain.WorkbookArchiveResponse, error) {
	sweep, err := s.OverdueSweep(ctx, asOf, "", 0)
	if err != nil {
		return domain.WorkbookArchiveResponse{}, err
	}
	data, err := report.OverdueWorkbook(sweep.AsOf, actor.Username, sweep.Installments)
	if err != nil {
		return domain.WorkbookArchiveResponse{}, fmt.Errorf("build overdue workbook: %w", err)
	}

	fileName := fmt.Sprintf("overdue_%s_%s.xlsx", sweep.AsOf, s.now().UTC().Format("20060102_150405"))
	key, err := s.archive.Upload(ctx, fileName, report.XLSXMediaType, data)
	if err != nil {
		if !errors.Is(err, archive.ErrDisabled) {
			s.log.WithError(err).Error("overdue workbook upload failed")
		}
		return domain.WorkbookArchiveResponse{}, err
	}
	url, err := s.archive.TemporaryURL(ctx, key, archiveURLExpiry)
	if err != nil {
		return domain.WorkbookArchiveResponse{}, err
	}

	s.logAudit(ctx, actor, "", "archive_overdue_workbook", "report", key, fmt.Sprintf("rows=%d", len(sweep.Installments)))
	return domain.WorkbookArchiveResponse{
		ObjectKey:   key,
		DownloadURL: url,
		Rows:        len(sweep.Installments),
	}, nil
}

func sweepResponse(day time.Time, page domain.InstallmentPage) domain.SweepResponse {
	rows := page.Rows
	if rows == nil {
		rows = []domain.OverdueInstallment{}
	}
	return domain.SweepResponse{
		AsOf:              day.Format(dateLayout),
		Installments:      rows,
		TotalRows:         page.TotalRows,
		TotalPendingCents: page.TotalPendingCents,
		Truncated:         len(rows) < page.TotalRows,
	}
}
