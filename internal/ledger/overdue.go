package ledger

import (
	"slices"
	"strings"
	"time"

	"kasirkredit/backend/internal/domain"
)

// IsOverdue reports whether an installment is overdue as of asOf. Dates are
// compared by calendar day, so an installment due today is not yet overdue.
func IsOverdue(status string, dueDate time.Time, pendingCents int64, asOf time.Time) bool {
	if status == domain.InstallmentStatusPaid || pendingCents <= 0 {
		return false
	}
	return Day(dueDate).Before(Day(asOf))
}

func DaysOverdue(inst domain.Installment, asOf time.Time) int {
	if !IsOverdue(inst.Status, inst.DueDate, inst.PendingCents, asOf) {
		return 0
	}
	return int(Day(asOf).Sub(Day(inst.DueDate)).Hours() / 24)
}

// DueWithin reports whether a still-pending installment falls due between asOf
// and asOf+days, both ends inclusive.
func DueWithin(inst domain.Installment, asOf time.Time, days int) bool {
	if inst.PendingCents <= 0 {
		return false
	}
	start := Day(asOf)
	due := Day(inst.DueDate)
	return !due.Before(start) && !due.After(start.AddDate(0, 0, days))
}

// ProjectStatuses returns a copy of a credit's installments with read-time
// statuses: unpaid installments of a void credit read as cancelled, and
// overdue ones of a live credit read as overdue. The input slice is not
// touched.
func ProjectStatuses(creditStatus string, installments []domain.Installment, asOf time.Time) []domain.Installment {
	out := make([]domain.Installment, len(installments))
	for i, inst := range installments {
		out[i] = inst
		switch {
		case creditStatus == domain.CreditStatusVoid:
			if inst.PaidCents < inst.AmountCents {
				out[i].Status = domain.InstallmentStatusCancelled
			}
		case IsOverdue(inst.Status, inst.DueDate, inst.PendingCents, asOf):
			out[i].Status = domain.InstallmentStatusOverdue
		}
	}
	return out
}

func Progress(installments []domain.Installment, asOf time.Time) domain.CreditProgress {
	var progress domain.CreditProgress
	for _, inst := range installments {
		switch {
		case inst.PendingCents <= 0 && inst.PaidCents >= inst.AmountCents:
			progress.PaidInstallments++
		case IsOverdue(inst.Status, inst.DueDate, inst.PendingCents, asOf):
			progress.OverdueInstallments++
			progress.OverdueCents += inst.PendingCents
		case inst.PendingCents > 0:
			progress.PendingInstallments++
		}
		if inst.PendingCents > 0 {
			due := Day(inst.DueDate)
			if progress.NextDueDate == nil || due.Before(*progress.NextDueDate) {
				progress.NextDueDate = &due
			}
		}
	}
	return progress
}

// Sweep lists the overdue installments of active credits, optionally for one
// customer, ordered by due date, then credit id, then sequence.
func Sweep(credits []domain.Credit, asOf time.Time, customerID string) []domain.OverdueInstallment {
	rows := make([]domain.OverdueInstallment, 0)
	for _, credit := range credits {
		if credit.Status != domain.CreditStatusActive {
			continue
		}
		if customerID != "" && credit.CustomerID != customerID {
			continue
		}
		for _, inst := range credit.Installments {
			if !IsOverdue(inst.Status, inst.DueDate, inst.PendingCents, asOf) {
				continue
			}
			rows = append(rows, toOverdueRow(credit, inst, asOf))
		}
	}
	sortRows(rows)
	return rows
}

// DueBetween lists pending installments of active credits due in [from, to].
func DueBetween(credits []domain.Credit, from time.Time, to time.Time, customerID string) []domain.OverdueInstallment {
	start, end := Day(from), Day(to)
	rows := make([]domain.OverdueInstallment, 0)
	for _, credit := range credits {
		if credit.Status != domain.CreditStatusActive {
			continue
		}
		if customerID != "" && credit.CustomerID != customerID {
			continue
		}
		for _, inst := range credit.Installments {
			due := Day(inst.DueDate)
			if inst.PendingCents <= 0 || due.Before(start) || due.After(end) {
				continue
			}
			rows = append(rows, toOverdueRow(credit, inst, from))
		}
	}
	sortRows(rows)
	return rows
}

func toOverdueRow(credit domain.Credit, inst domain.Installment, asOf time.Time) domain.OverdueInstallment {
	return domain.OverdueInstallment{
		CreditID:      credit.ID,
		CustomerID:    credit.CustomerID,
		InstallmentID: inst.ID,
		Sequence:      inst.Sequence,
		DueDate:       Day(inst.DueDate),
		AmountCents:   inst.AmountCents,
		PendingCents:  inst.PendingCents,
		DaysOverdue:   DaysOverdue(inst, asOf),
	}
}

func sortRows(rows []domain.OverdueInstallment) {
	slices.SortFunc(rows, func(a, b domain.OverdueInstallment) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		if c := strings.Compare(a.CreditID, b.CreditID); c != 0 {
			return c
		}
		return a.Sequence - b.Sequence
	})
}
