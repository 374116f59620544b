package ledger

import (
	"fmt"
	"slices"
	"time"

	"kasirkredit/backend/internal/domain"
)

// Application is the outcome of distributing one payment over a credit.
// Allocations carry installment ids and sequences; PaymentID is filled by the store.
type Application struct {
	Allocations  []domain.PaymentAllocation
	AppliedCents int64
	ExcessCents  int64
	Completed    bool
}

// ApplyPayment distributes amountCents over the pending installments of credit,
// oldest due date first with the sequence number as tie-break. Each installment
// takes min(remaining, pending). Whatever is left once nothing is pending is
// reported as ExcessCents and never stored as a balance.
//
// The credit is mutated in place. On any error it is left exactly as it was.
func ApplyPayment(credit *domain.Credit, amountCents int64, paidOn time.Time) (Application, error) {
	if amountCents <= 0 {
		return Application{}, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidAmount, amountCents)
	}
	if credit == nil {
		return Application{}, fmt.Errorf("%w: credit required", ErrCreditNotActive)
	}
	if credit.Status != domain.CreditStatusActive {
		return Application{}, fmt.Errorf("%w: credit %s is %s", ErrCreditNotActive, credit.ID, credit.Status)
	}

	before := snapshot(*credit)
	paidAt := paidOn.UTC()

	app := Application{Allocations: make([]domain.PaymentAllocation, 0, len(credit.Installments))}
	remaining := amountCents
	for _, idx := range allocationOrder(credit.Installments) {
		if remaining == 0 {
			break
		}
		inst := &credit.Installments[idx]
		take := min(remaining, inst.PendingCents)

		inst.PendingCents -= take
		inst.PaidCents += take
		inst.Status = SettledStatus(inst.AmountCents, inst.PendingCents)
		if inst.PendingCents == 0 {
			at := paidAt
			inst.PaidAt = &at
		}
		remaining -= take

		app.Allocations = append(app.Allocations, domain.PaymentAllocation{
			InstallmentID:       inst.ID,
			InstallmentSequence: inst.Sequence,
			AmountCents:         take,
		})
	}
	app.ExcessCents = remaining
	app.AppliedCents = amountCents - remaining

	credit.OutstandingCents = RecomputeOutstanding(credit.Installments)
	if credit.OutstandingCents == 0 {
		credit.Status = domain.CreditStatusCompleted
		credit.CompletedAt = &paidAt
		app.Completed = true
	}

	if err := verifyApplication(*credit, app, amountCents); err != nil {
		*credit = before
		return Application{}, err
	}
	return app, nil
}

func allocationOrder(installments []domain.Installment) []int {
	order := make([]int, 0, len(installments))
	for i, inst := range installments {
		if inst.PendingCents > 0 {
			order = append(order, i)
		}
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := installments[a].DueDate.Compare(installments[b].DueDate); c != 0 {
			return c
		}
		return installments[a].Sequence - installments[b].Sequence
	})
	return order
}

func verifyApplication(credit domain.Credit, app Application, amountCents int64) error {
	var allocated int64
	perInstallment := make(map[int]int64, len(app.Allocations))
	for _, alloc := range app.Allocations {
		if alloc.AmountCents <= 0 {
			return fmt.Errorf("%w: non-positive allocation on installment %d", ErrAllocationInvariant, alloc.InstallmentSequence)
		}
		allocated += alloc.AmountCents
		perInstallment[alloc.InstallmentSequence] += alloc.AmountCents
	}
	if allocated != app.AppliedCents || app.AppliedCents+app.ExcessCents != amountCents {
		return fmt.Errorf("%w: allocated %d, applied %d, excess %d, amount %d", ErrAllocationInvariant, allocated, app.AppliedCents, app.ExcessCents, amountCents)
	}
	if app.ExcessCents > 0 && credit.OutstandingCents != 0 {
		return fmt.Errorf("%w: excess reported while %d still outstanding", ErrAllocationInvariant, credit.OutstandingCents)
	}
	for _, inst := range credit.Installments {
		if perInstallment[inst.Sequence] > inst.AmountCents {
			return fmt.Errorf("%w: installment %d over-allocated", ErrAllocationInvariant, inst.Sequence)
		}
	}
	return CheckInvariants(credit)
}

func snapshot(credit domain.Credit) domain.Credit {
	out := credit
	out.Installments = make([]domain.Installment, len(credit.Installments))
	for i, inst := range credit.Installments {
		out.Installments[i] = inst
		if inst.PaidAt != nil {
			at := *inst.PaidAt
			out.Installments[i].PaidAt = &at
		}
	}
	if credit.CompletedAt != nil {
		at := *credit.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
