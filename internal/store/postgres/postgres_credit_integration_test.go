package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := integrationDatabaseURL(t)

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedIntegrationCredit(t *testing.T, s *Store, total int64, count int) *domain.Credit {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	customerID := fmt.Sprintf("cus-it-%d", stamp)
	creditID := fmt.Sprintf("crd-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payment_allocations WHERE payment_id IN (SELECT id FROM payments WHERE credit_id = $1)`, creditID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE credit_id = $1`, creditID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM installments WHERE credit_id = $1`, creditID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM credits WHERE id = $1`, creditID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, document_type, document_number, full_name, active, created_at)
		VALUES ($1, 'dni', $2, 'Cliente Integracion', true, now())
	`, customerID, fmt.Sprintf("%08d", stamp%100000000)); err != nil {
		t.Fatalf("insert customer: %v", err)
	}

	firstDue := ledger.Day(time.Now().UTC()).AddDate(0, 0, -45)
	installments, err := ledger.BuildSchedule(total, count, firstDue, 30)
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}
	credit, err := s.CreateCredit(ctx, domain.Credit{
		ID:           creditID,
		StoreID:      "it-store",
		CustomerID:   customerID,
		TotalCents:   total,
		IntervalDays: 30,
		FirstDueDate: firstDue,
		CreatedBy:    "integration",
		Installments: installments,
	})
	if err != nil {
		t.Fatalf("create credit: %v", err)
	}
	return credit
}

func TestApplyPaymentPersistsAllocations(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	credit := seedIntegrationCredit(t, s, 1000, 3)
	key := fmt.Sprintf("idem-it-%d", time.Now().UnixNano())

	out, err := s.ApplyPayment(ctx, credit.ID, store.PaymentIntent{
		IdempotencyKey: key,
		AmountCents:    500,
		Method:         domain.PaymentMethodCash,
		PaidOn:         time.Now().UTC(),
		RecordedBy:     "integration",
	})
	if err != nil {
		t.Fatalf("apply payment: %v", err)
	}
	if len(out.Payment.Allocations) != 2 || out.Credit.OutstandingCents != 500 {
		t.Fatalf("unexpected outcome %+v", out)
	}

	stored, err := s.GetCredit(ctx, credit.ID)
	if err != nil {
		t.Fatalf("get credit: %v", err)
	}
	if err := ledger.CheckInvariants(*stored); err != nil {
		t.Fatalf("stored credit breaks invariants: %v", err)
	}
	if stored.Installments[0].Status != domain.InstallmentStatusPaid || stored.Installments[1].PendingCents != 166 {
		t.Fatalf("unexpected installments %+v", stored.Installments)
	}

	replay, err := s.ApplyPayment(ctx, credit.ID, store.PaymentIntent{IdempotencyKey: key, AmountCents: 500, PaidOn: time.Now().UTC()})
	if err != nil || !replay.Duplicate || replay.Payment.ID != out.Payment.ID {
		t.Fatalf("expected duplicate replay, got %+v (%v)", replay, err)
	}
	if _, err := s.ApplyPayment(ctx, credit.ID, store.PaymentIntent{IdempotencyKey: key, AmountCents: 10, PaidOn: time.Now().UTC()}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	sweep, err := s.ListOverdueInstallments(ctx, time.Now().UTC(), stored.CustomerID, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	rows := sweep.Rows
	if len(rows) != 1 || rows[0].Sequence != 2 || rows[0].DaysOverdue != 15 {
		t.Fatalf("unexpected sweep rows %+v", rows)
	}
	if sweep.TotalRows != 1 || sweep.TotalPendingCents != rows[0].PendingCents {
		t.Fatalf("unexpected sweep totals %+v", sweep)
	}
}

func TestConcurrentPaymentsSerialize(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	credit := seedIntegrationCredit(t, s, 3000, 3)
	stamp := time.Now().UnixNano()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				_, err := s.ApplyPayment(ctx, credit.ID, store.PaymentIntent{
					IdempotencyKey: fmt.Sprintf("idem-it-%d-%d", stamp, i),
					AmountCents:    500,
					Method:         domain.PaymentMethodTransfer,
					PaidOn:         time.Now().UTC(),
					RecordedBy:     "integration",
				})
				if errors.Is(err, store.ErrConflict) {
					continue
				}
				if err != nil {
					t.Errorf("apply %d: %v", i, err)
				}
				return
			}
		}(i)
	}
	wg.Wait()

	stored, err := s.GetCredit(ctx, credit.ID)
	if err != nil {
		t.Fatalf("get credit: %v", err)
	}
	if stored.Status != domain.CreditStatusCompleted || stored.OutstandingCents != 0 {
		t.Fatalf("expected completed credit, got %s/%d", stored.Status, stored.OutstandingCents)
	}
}

func TestVoidCreditZeroesPending(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	credit := seedIntegrationCredit(t, s, 900, 3)

	voided, err := s.VoidCredit(ctx, credit.ID, "admin", "merchandise returned", time.Now().UTC())
	if err != nil {
		t.Fatalf("void credit: %v", err)
	}
	if voided.Status != domain.CreditStatusVoid || voided.OutstandingCents != 0 {
		t.Fatalf("unexpected void result %+v", voided)
	}

	stored, err := s.GetCredit(ctx, credit.ID)
	if err != nil {
		t.Fatalf("get credit: %v", err)
	}
	for _, inst := range stored.Installments {
		if inst.PendingCents != 0 {
			t.Fatalf("installment %d still pending %d", inst.Sequence, inst.PendingCents)
		}
	}
	if _, err := s.VoidCredit(ctx, credit.ID, "admin", "again", time.Now().UTC()); !errors.Is(err, ledger.ErrInvalidStateTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestUserAccountsKeepStoreScope(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()
	username := fmt.Sprintf("cobrador-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM app_users WHERE username = $1`, username)
	})

	if err := s.CreateUser(ctx, domain.UserAccount{Username: username, Password: "$2a$10$x", Role: "cashier", StoreID: "arequipa", Active: true}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{Username: username, Password: "$2a$10$x"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate username, got %v", err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	for _, user := range users {
		if user.Username == username {
			if user.StoreID != "arequipa" {
				t.Fatalf("expected store arequipa, got %q", user.StoreID)
			}
			return
		}
	}
	t.Fatalf("user %s not listed", username)
}
