package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirkredit/backend/internal/domain"
)

var jan1 = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

func newCredit(t *testing.T, amounts ...int64) *domain.Credit {
	t.Helper()
	credit := &domain.Credit{ID: "cr-1", CustomerID: "cus-1", Status: domain.CreditStatusActive}
	for i, amount := range amounts {
		credit.Installments = append(credit.Installments, domain.Installment{
			ID:           "inst-" + string(rune('a'+i)),
			Sequence:     i + 1,
			DueDate:      jan1.AddDate(0, i, 0),
			AmountCents:  amount,
			PendingCents: amount,
			Status:       domain.InstallmentStatusPending,
		})
		credit.TotalCents += amount
	}
	credit.OutstandingCents = RecomputeOutstanding(credit.Installments)
	return credit
}

func sumAmounts(installments []domain.Installment) int64 {
	var total int64
	for _, inst := range installments {
		total += inst.AmountCents
	}
	return total
}

func TestBuildScheduleRemainderOnLastInstallment(t *testing.T) {
	installments, err := BuildSchedule(1000, 3, jan1, 30)
	require.NoError(t, err)
	require.Len(t, installments, 3)

	assert.Equal(t, int64(333), installments[0].AmountCents)
	assert.Equal(t, int64(333), installments[1].AmountCents)
	assert.Equal(t, int64(334), installments[2].AmountCents)
	assert.Equal(t, int64(1000), sumAmounts(installments))

	for i, inst := range installments {
		assert.Equal(t, i+1, inst.Sequence)
		assert.Equal(t, inst.AmountCents, inst.PendingCents)
		assert.Equal(t, domain.InstallmentStatusPending, inst.Status)
		assert.Equal(t, jan1.AddDate(0, 0, 30*i), inst.DueDate)
	}
}

func TestBuildScheduleSumsExactlyForManyShapes(t *testing.T) {
	for _, tc := range []struct {
		total int64
		count int
	}{
		{1, 1}, {7, 7}, {100, 3}, {99999, 12}, {250000, 24}, {10, 4},
	} {
		installments, err := BuildSchedule(tc.total, tc.count, jan1, 15)
		require.NoError(t, err)
		require.Len(t, installments, tc.count)
		assert.Equal(t, tc.total, sumAmounts(installments), "total=%d count=%d", tc.total, tc.count)
		assert.Equal(t, tc.total, RecomputeOutstanding(installments))

		base := tc.total / int64(tc.count)
		for _, inst := range installments[:tc.count-1] {
			assert.Equal(t, base, inst.AmountCents)
		}
	}
}

func TestBuildScheduleRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		count    int
		firstDue time.Time
	}{
		{"zero count", 1000, 0, jan1},
		{"negative count", 1000, -2, jan1},
		{"zero total", 0, 3, jan1},
		{"negative total", -10, 3, jan1},
		{"total below count", 2, 3, jan1},
		{"missing first due date", 1000, 3, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildSchedule(tc.total, tc.count, tc.firstDue, 30)
			require.ErrorIs(t, err, ErrInvalidSchedule)
		})
	}
}

func TestBuildScheduleDefaultsInterval(t *testing.T) {
	installments, err := BuildSchedule(900, 3, jan1.Add(15*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, jan1, installments[0].DueDate)
	assert.Equal(t, jan1.AddDate(0, 0, DefaultIntervalDays), installments[1].DueDate)
}

func TestApplyPaymentSpreadsOldestFirst(t *testing.T) {
	credit := newCredit(t, 300, 300, 400)

	app, err := ApplyPayment(credit, 500, jan1)
	require.NoError(t, err)

	assert.Equal(t, int64(0), app.ExcessCents)
	assert.Equal(t, int64(500), app.AppliedCents)
	require.Len(t, app.Allocations, 2)
	assert.Equal(t, int64(300), app.Allocations[0].AmountCents)
	assert.Equal(t, int64(200), app.Allocations[1].AmountCents)

	assert.Equal(t, int64(0), credit.Installments[0].PendingCents)
	assert.Equal(t, domain.InstallmentStatusPaid, credit.Installments[0].Status)
	assert.NotNil(t, credit.Installments[0].PaidAt)
	assert.Equal(t, int64(100), credit.Installments[1].PendingCents)
	assert.Equal(t, domain.InstallmentStatusPartiallyPaid, credit.Installments[1].Status)
	assert.Equal(t, int64(400), credit.Installments[2].PendingCents)
	assert.Equal(t, domain.InstallmentStatusPending, credit.Installments[2].Status)

	assert.Equal(t, int64(500), credit.OutstandingCents)
	assert.Equal(t, RecomputeOutstanding(credit.Installments), credit.OutstandingCents)
	assert.Equal(t, domain.CreditStatusActive, credit.Status)
}

func TestApplyPaymentExactInstallmentPaysOnlyThatInstallment(t *testing.T) {
	credit := newCredit(t, 300, 300, 400)

	app, err := ApplyPayment(credit, 300, jan1)
	require.NoError(t, err)

	require.Len(t, app.Allocations, 1)
	assert.Equal(t, 1, app.Allocations[0].InstallmentSequence)
	assert.Equal(t, domain.InstallmentStatusPaid, credit.Installments[0].Status)
	assert.Equal(t, domain.InstallmentStatusPending, credit.Installments[1].Status)
	assert.Equal(t, int64(300), credit.Installments[1].PendingCents)
	assert.Equal(t, domain.InstallmentStatusPending, credit.Installments[2].Status)
}

func TestApplyPaymentOverpaymentReportsExcessAndCompletes(t *testing.T) {
	credit := newCredit(t, 300, 300, 400)

	app, err := ApplyPayment(credit, 1250, jan1)
	require.NoError(t, err)

	assert.Equal(t, int64(250), app.ExcessCents)
	assert.Equal(t, int64(1000), app.AppliedCents)
	assert.True(t, app.Completed)
	assert.Equal(t, domain.CreditStatusCompleted, credit.Status)
	assert.NotNil(t, credit.CompletedAt)
	assert.Equal(t, int64(0), credit.OutstandingCents)
	for _, inst := range credit.Installments {
		assert.Equal(t, domain.InstallmentStatusPaid, inst.Status)
	}
}

func TestApplyPaymentOrdersByDueDateThenSequence(t *testing.T) {
	credit := newCredit(t, 100, 100, 100)
	// sequence 3 falls due before sequence 2
	credit.Installments[2].DueDate = credit.Installments[0].DueDate.AddDate(0, 0, 1)

	app, err := ApplyPayment(credit, 150, jan1)
	require.NoError(t, err)

	require.Len(t, app.Allocations, 2)
	assert.Equal(t, 1, app.Allocations[0].InstallmentSequence)
	assert.Equal(t, 3, app.Allocations[1].InstallmentSequence)
	assert.Equal(t, int64(50), credit.Installments[2].PendingCents)
	assert.Equal(t, int64(100), credit.Installments[1].PendingCents)

	tied := newCredit(t, 100, 100)
	tied.Installments[1].DueDate = tied.Installments[0].DueDate
	app, err = ApplyPayment(tied, 100, jan1)
	require.NoError(t, err)
	assert.Equal(t, 1, app.Allocations[0].InstallmentSequence)
}

func TestApplyPaymentRejectsInactiveCreditWithoutChange(t *testing.T) {
	credit := newCredit(t, 300, 300, 400)
	require.NoError(t, Void(credit, "admin", "customer returned goods", jan1))
	before := *credit

	_, err := ApplyPayment(credit, 100, jan1)
	require.ErrorIs(t, err, ErrCreditNotActive)
	assert.Equal(t, before.Status, credit.Status)
	assert.Equal(t, before.OutstandingCents, credit.OutstandingCents)

	completed := newCredit(t, 100)
	_, err = ApplyPayment(completed, 100, jan1)
	require.NoError(t, err)
	_, err = ApplyPayment(completed, 1, jan1)
	require.ErrorIs(t, err, ErrCreditNotActive)
}

func TestApplyPaymentRejectsNonPositiveAmount(t *testing.T) {
	credit := newCredit(t, 300)
	for _, amount := range []int64{0, -1} {
		_, err := ApplyPayment(credit, amount, jan1)
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
	assert.Equal(t, int64(300), credit.OutstandingCents)
}

func TestApplyPaymentRestoresCreditOnInvariantViolation(t *testing.T) {
	credit := newCredit(t, 300, 300)
	// Corrupt the stored aggregate so the post-check fails.
	credit.Installments[1].PaidCents = 50

	_, err := ApplyPayment(credit, 100, jan1)
	require.ErrorIs(t, err, ErrAllocationInvariant)
	assert.Equal(t, int64(300), credit.Installments[0].PendingCents)
	assert.Nil(t, credit.Installments[0].PaidAt)
	assert.Equal(t, int64(600), credit.OutstandingCents)
}

func TestOutstandingMatchesPendingAfterEverySequence(t *testing.T) {
	credit := newCredit(t, 333, 333, 334)
	for _, amount := range []int64{1, 99, 333, 250, 17, 300} {
		if credit.Status != domain.CreditStatusActive {
			break
		}
		_, err := ApplyPayment(credit, amount, jan1)
		require.NoError(t, err)
		assert.Equal(t, RecomputeOutstanding(credit.Installments), credit.OutstandingCents)
		assert.Equal(t, RecomputeOutstanding(credit.Installments), RecomputeOutstanding(credit.Installments))
		require.NoError(t, CheckInvariants(*credit))
	}
}

func TestVoidTransitions(t *testing.T) {
	credit := newCredit(t, 300, 300)
	_, err := ApplyPayment(credit, 100, jan1)
	require.NoError(t, err)

	require.NoError(t, Void(credit, "admin", "fraud", jan1))
	assert.Equal(t, domain.CreditStatusVoid, credit.Status)
	assert.Equal(t, int64(0), credit.OutstandingCents)
	assert.Equal(t, "admin", credit.VoidedBy)
	for _, inst := range credit.Installments {
		assert.Equal(t, int64(0), inst.PendingCents)
	}
	require.NoError(t, CheckInvariants(*credit))

	err = Void(credit, "admin", "again", jan1)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	completed := newCredit(t, 100)
	_, err = ApplyPayment(completed, 100, jan1)
	require.NoError(t, err)
	err = Void(completed, "admin", "late", jan1)
	require.True(t, errors.Is(err, ErrInvalidStateTransition))
	assert.Equal(t, domain.CreditStatusCompleted, completed.Status)
}

func TestProjectStatusesMarksOverdue(t *testing.T) {
	credit := newCredit(t, 100, 100, 100)
	asOf := jan1.AddDate(0, 1, 5)

	projected := ProjectStatuses(credit.Status, credit.Installments, asOf)
	assert.Equal(t, domain.InstallmentStatusOverdue, projected[0].Status)
	assert.Equal(t, domain.InstallmentStatusOverdue, projected[1].Status)
	assert.Equal(t, domain.InstallmentStatusPending, projected[2].Status)
	assert.Equal(t, domain.InstallmentStatusPending, credit.Installments[0].Status)

	_, err := ApplyPayment(credit, 100, asOf)
	require.NoError(t, err)
	projected = ProjectStatuses(credit.Status, credit.Installments, asOf)
	assert.Equal(t, domain.InstallmentStatusPaid, projected[0].Status)
}

func TestProjectStatusesCancelsUnpaidInstallmentsOfVoidCredit(t *testing.T) {
	credit := newCredit(t, 100, 100, 100)
	_, err := ApplyPayment(credit, 150, jan1)
	require.NoError(t, err)
	require.NoError(t, Void(credit, "admin", "returned goods", jan1))

	projected := ProjectStatuses(credit.Status, credit.Installments, jan1.AddDate(0, 3, 0))
	assert.Equal(t, domain.InstallmentStatusPaid, projected[0].Status)
	assert.Equal(t, domain.InstallmentStatusCancelled, projected[1].Status)
	assert.Equal(t, int64(50), projected[1].PaidCents)
	assert.Equal(t, domain.InstallmentStatusCancelled, projected[2].Status)
	for _, inst := range projected {
		assert.Zero(t, inst.PendingCents)
	}
	assert.Equal(t, domain.InstallmentStatusPartiallyPaid, credit.Installments[1].Status)
}

func TestIsOverdueUsesCalendarDays(t *testing.T) {
	due := jan1
	assert.False(t, IsOverdue(domain.InstallmentStatusPending, due, 10, jan1.Add(23*time.Hour)))
	assert.True(t, IsOverdue(domain.InstallmentStatusPending, due, 10, jan1.AddDate(0, 0, 1)))
	assert.False(t, IsOverdue(domain.InstallmentStatusPaid, due, 0, jan1.AddDate(0, 0, 10)))
	assert.False(t, IsOverdue(domain.InstallmentStatusPartiallyPaid, due, 0, jan1.AddDate(0, 0, 10)))
	assert.Equal(t, 10, DaysOverdue(domain.Installment{DueDate: due, PendingCents: 5, AmountCents: 5}, jan1.AddDate(0, 0, 10)))
}

func TestSweepListsOverdueUntilPaid(t *testing.T) {
	credit := newCredit(t, 300, 300, 400)
	other := newCredit(t, 50)
	other.ID = "cr-0"
	other.CustomerID = "cus-2"
	asOf := jan1.AddDate(0, 1, 10)

	rows := Sweep([]domain.Credit{*credit, *other}, asOf, "")
	require.Len(t, rows, 3)
	assert.Equal(t, "cr-0", rows[0].CreditID)
	assert.Equal(t, "cr-1", rows[1].CreditID)
	assert.Equal(t, 1, rows[1].Sequence)
	assert.Equal(t, 2, rows[2].Sequence)
	assert.Equal(t, 41, rows[1].DaysOverdue)

	rows = Sweep([]domain.Credit{*credit, *other}, asOf, "cus-1")
	require.Len(t, rows, 2)

	_, err := ApplyPayment(credit, 300, asOf)
	require.NoError(t, err)
	rows = Sweep([]domain.Credit{*credit}, asOf, "")
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Sequence)

	require.NoError(t, Void(credit, "admin", "", asOf))
	assert.Empty(t, Sweep([]domain.Credit{*credit}, asOf, ""))
}

func TestDueBetweenAndProgress(t *testing.T) {
	credit := newCredit(t, 100, 100, 100)
	asOf := jan1.AddDate(0, 1, -3)

	rows := DueBetween([]domain.Credit{*credit}, asOf, asOf.AddDate(0, 0, 7), "")
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Sequence)
	assert.True(t, DueWithin(credit.Installments[1], asOf, 7))
	assert.False(t, DueWithin(credit.Installments[2], asOf, 7))

	progress := Progress(credit.Installments, asOf)
	assert.Equal(t, 1, progress.OverdueInstallments)
	assert.Equal(t, int64(100), progress.OverdueCents)
	assert.Equal(t, 2, progress.PendingInstallments)
	require.NotNil(t, progress.NextDueDate)
	assert.Equal(t, jan1, *progress.NextDueDate)

	_, err := ApplyPayment(credit, 150, asOf)
	require.NoError(t, err)
	progress = Progress(credit.Installments, asOf)
	assert.Equal(t, 1, progress.PaidInstallments)
	assert.Equal(t, 0, progress.OverdueInstallments)
	assert.Equal(t, jan1.AddDate(0, 1, 0), *progress.NextDueDate)
}
