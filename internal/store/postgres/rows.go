package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/store"
)

const creditColumns = `id, store_id, customer_id, COALESCE(sale_reference,''), total_cents, down_payment_cents,
	outstanding_cents, installment_count, interval_days, first_due_date, status, COALESCE(notes,''),
	created_by, created_at, updated_at, completed_at, voided_at, COALESCE(voided_by,''), COALESCE(void_reason,'')`

const installmentColumns = `id, credit_id, sequence, due_date, amount_cents, paid_cents, pending_cents, status, paid_at`

const paymentColumns = `id, credit_id, customer_id, store_id, idempotency_key, amount_cents, excess_cents, method,
	COALESCE(reference,''), COALESCE(notes,''), paid_on, recorded_by, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (domain.Customer, error) {
	var customer domain.Customer
	err := row.Scan(&customer.ID, &customer.DocumentType, &customer.DocumentNumber, &customer.FullName,
		&customer.Phone, &customer.Email, &customer.Address, &customer.Active, &customer.CreatedAt)
	customer.CreatedAt = customer.CreatedAt.UTC()
	return customer, err
}

func scanCredit(row scanner) (domain.Credit, error) {
	var credit domain.Credit
	var completedAt, voidedAt sql.NullTime
	err := row.Scan(&credit.ID, &credit.StoreID, &credit.CustomerID, &credit.SaleReference, &credit.TotalCents,
		&credit.DownPaymentCents, &credit.OutstandingCents, &credit.InstallmentCount, &credit.IntervalDays,
		&credit.FirstDueDate, &credit.Status, &credit.Notes, &credit.CreatedBy, &credit.CreatedAt, &credit.UpdatedAt,
		&completedAt, &voidedAt, &credit.VoidedBy, &credit.VoidReason)
	if err != nil {
		return credit, err
	}
	credit.FirstDueDate = ledger.Day(credit.FirstDueDate)
	credit.CreatedAt = credit.CreatedAt.UTC()
	credit.UpdatedAt = credit.UpdatedAt.UTC()
	credit.CompletedAt = timePtr(completedAt)
	credit.VoidedAt = timePtr(voidedAt)
	return credit, nil
}

func scanInstallment(row scanner) (domain.Installment, error) {
	var inst domain.Installment
	var paidAt sql.NullTime
	err := row.Scan(&inst.ID, &inst.CreditID, &inst.Sequence, &inst.DueDate, &inst.AmountCents,
		&inst.PaidCents, &inst.PendingCents, &inst.Status, &paidAt)
	if err != nil {
		return inst, err
	}
	inst.DueDate = ledger.Day(inst.DueDate)
	inst.PaidAt = timePtr(paidAt)
	return inst, nil
}

func scanPayment(row scanner) (domain.Payment, error) {
	var payment domain.Payment
	err := row.Scan(&payment.ID, &payment.CreditID, &payment.CustomerID, &payment.StoreID, &payment.IdempotencyKey,
		&payment.AmountCents, &payment.ExcessCents, &payment.Method, &payment.Reference, &payment.Notes,
		&payment.PaidOn, &payment.RecordedBy, &payment.CreatedAt)
	if err != nil {
		return payment, err
	}
	payment.PaidOn = ledger.Day(payment.PaidOn)
	payment.CreatedAt = payment.CreatedAt.UTC()
	return payment, nil
}

// loadCredit reads a credit with its installments. With lock set both rows
// are selected FOR UPDATE, which only makes sense inside a transaction.
func loadCredit(ctx context.Context, q queryer, id string, lock bool) (*domain.Credit, error) {
	suffix := ""
	if lock {
		suffix = " FOR UPDATE"
	}

	credit, err := scanCredit(q.QueryRowContext(ctx, `SELECT `+creditColumns+` FROM credits WHERE id = $1`+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `SELECT `+installmentColumns+` FROM installments WHERE credit_id = $1 ORDER BY sequence`+suffix, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credit.Installments = make([]domain.Installment, 0, credit.InstallmentCount)
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		credit.Installments = append(credit.Installments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &credit, nil
}

func findPayment(ctx context.Context, q queryer, column string, value string) (*domain.Payment, error) {
	payment, err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT payment_id, installment_id, installment_sequence, amount_cents
		FROM payment_allocations
		WHERE payment_id = $1
		ORDER BY installment_sequence
	`, payment.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payment.Allocations = make([]domain.PaymentAllocation, 0, 4)
	for rows.Next() {
		var alloc domain.PaymentAllocation
		if err := rows.Scan(&alloc.PaymentID, &alloc.InstallmentID, &alloc.InstallmentSequence, &alloc.AmountCents); err != nil {
			return nil, err
		}
		payment.Allocations = append(payment.Allocations, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &payment, nil
}

func updateInstallment(ctx context.Context, tx *sql.Tx, inst domain.Installment) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE installments
		SET paid_cents = $2, pending_cents = $3, status = $4, paid_at = $5
		WHERE id = $1
	`, inst.ID, inst.PaidCents, inst.PendingCents, inst.Status, nullTime(inst.PaidAt))
	return err
}

func updateCredit(ctx context.Context, tx *sql.Tx, credit domain.Credit) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE credits
		SET outstanding_cents = $2,
			status = $3,
			updated_at = $4,
			completed_at = $5,
			voided_at = $6,
			voided_by = $7,
			void_reason = $8
		WHERE id = $1
	`, credit.ID, credit.OutstandingCents, credit.Status, credit.UpdatedAt, nullTime(credit.CompletedAt),
		nullTime(credit.VoidedAt), nullIfEmpty(credit.VoidedBy), nullIfEmpty(credit.VoidReason))
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
