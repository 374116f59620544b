// Package ledger holds the credit and installment rules: schedule generation,
// payment distribution, the outstanding aggregate and the overdue projection.
// Everything here is pure; stores call into it inside their own transactions.
package ledger

import (
	"fmt"
	"time"

	"kasirkredit/backend/internal/domain"
)

const DefaultIntervalDays = 30

// BuildSchedule splits totalCents into count installments. Integer division is
// used and the remainder lands on the last installment, so the amounts always
// sum to totalCents exactly.
func BuildSchedule(totalCents int64, count int, firstDueDate time.Time, intervalDays int) ([]domain.Installment, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: installment count must be at least 1", ErrInvalidSchedule)
	}
	if totalCents <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", ErrInvalidSchedule)
	}
	if totalCents < int64(count) {
		return nil, fmt.Errorf("%w: total %d cannot cover %d installments", ErrInvalidSchedule, totalCents, count)
	}
	if firstDueDate.IsZero() {
		return nil, fmt.Errorf("%w: first due date required", ErrInvalidSchedule)
	}
	if intervalDays <= 0 {
		intervalDays = DefaultIntervalDays
	}

	base := totalCents / int64(count)
	remainder := totalCents % int64(count)
	first := Day(firstDueDate)

	installments := make([]domain.Installment, count)
	for i := 0; i < count; i++ {
		amount := base
		if i == count-1 {
			amount += remainder
		}
		installments[i] = domain.Installment{
			Sequence:     i + 1,
			DueDate:      first.AddDate(0, 0, i*intervalDays),
			AmountCents:  amount,
			PendingCents: amount,
			Status:       domain.InstallmentStatusPending,
		}
	}
	return installments, nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
