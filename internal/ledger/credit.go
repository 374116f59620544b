package ledger

import (
	"fmt"
	"time"

	"kasirkredit/backend/internal/domain"
)

// RecomputeOutstanding is the sum of pending amounts.
func RecomputeOutstanding(installments []domain.Installment) int64 {
	var total int64
	for _, inst := range installments {
		total += inst.PendingCents
	}
	return total
}

// SettledStatus derives the stored installment status from its amounts.
func SettledStatus(amountCents int64, pendingCents int64) string {
	switch {
	case pendingCents <= 0:
		return domain.InstallmentStatusPaid
	case pendingCents < amountCents:
		return domain.InstallmentStatusPartiallyPaid
	default:
		return domain.InstallmentStatusPending
	}
}

// Void moves an active credit to void and zeroes every pending amount so no
// further payment can be allocated. Installment statuses are left as they were.
func Void(credit *domain.Credit, actor string, reason string, at time.Time) error {
	if credit == nil {
		return fmt.Errorf("%w: credit required", ErrInvalidStateTransition)
	}
	if credit.Status != domain.CreditStatusActive {
		return fmt.Errorf("%w: cannot void a %s credit", ErrInvalidStateTransition, credit.Status)
	}

	for i := range credit.Installments {
		credit.Installments[i].PendingCents = 0
	}
	voidedAt := at.UTC()
	credit.OutstandingCents = 0
	credit.Status = domain.CreditStatusVoid
	credit.VoidedAt = &voidedAt
	credit.VoidedBy = actor
	credit.VoidReason = reason
	return nil
}

// CheckInvariants verifies that the stored aggregate agrees with its installments.
func CheckInvariants(credit domain.Credit) error {
	for _, inst := range credit.Installments {
		if inst.PendingCents < 0 || inst.PendingCents > inst.AmountCents {
			return fmt.Errorf("%w: installment %d pending %d outside [0,%d]", ErrAllocationInvariant, inst.Sequence, inst.PendingCents, inst.AmountCents)
		}
		if inst.PaidCents < 0 || inst.PaidCents > inst.AmountCents {
			return fmt.Errorf("%w: installment %d paid %d exceeds %d", ErrAllocationInvariant, inst.Sequence, inst.PaidCents, inst.AmountCents)
		}
		if credit.Status != domain.CreditStatusVoid && inst.PaidCents+inst.PendingCents != inst.AmountCents {
			return fmt.Errorf("%w: installment %d paid+pending != amount", ErrAllocationInvariant, inst.Sequence)
		}
	}

	if sum := RecomputeOutstanding(credit.Installments); sum != credit.OutstandingCents {
		return fmt.Errorf("%w: outstanding %d != pending sum %d", ErrAllocationInvariant, credit.OutstandingCents, sum)
	}
	if credit.Status == domain.CreditStatusCompleted && credit.OutstandingCents != 0 {
		return fmt.Errorf("%w: completed credit still owes %d", ErrAllocationInvariant, credit.OutstandingCents)
	}
	if credit.Status == domain.CreditStatusActive && credit.OutstandingCents == 0 && len(credit.Installments) > 0 {
		return fmt.Errorf("%w: active credit has nothing outstanding", ErrAllocationInvariant)
	}
	return nil
}
