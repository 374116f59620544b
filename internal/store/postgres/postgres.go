package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/store"
	"kasirkredit/backend/internal/xid"
)

type Store struct {
	db  *sql.DB
	url string
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, url: databaseURL}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.DocumentType == "" || customer.DocumentNumber == "" || strings.TrimSpace(customer.FullName) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, document_type, document_number, full_name, phone, email, address, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.DocumentType, customer.DocumentNumber, customer.FullName,
		nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), nullIfEmpty(customer.Address),
		customer.Active, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: customer with %s %s already exists", store.ErrConflict, customer.DocumentType, customer.DocumentNumber)
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return s.findCustomer(ctx, "id = $1", id)
}

func (s *Store) FindCustomerByDocument(ctx context.Context, documentType string, documentNumber string) (*domain.Customer, error) {
	return s.findCustomer(ctx, "document_type = $1 AND document_number = $2", documentType, documentNumber)
}

const customerColumns = `id, document_type, document_number, full_name, COALESCE(phone,''), COALESCE(email,''), COALESCE(address,''), active, created_at`

func (s *Store) findCustomer(ctx context.Context, where string, args ...any) (*domain.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+where, args...)
	customer, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY full_name, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateCredit(ctx context.Context, credit domain.Credit) (*domain.Credit, error) {
	if credit.CustomerID == "" || len(credit.Installments) == 0 {
		return nil, store.ErrInvalidInput
	}
	if credit.ID == "" {
		credit.ID = xid.New("crd")
	}
	now := time.Now().UTC()
	if credit.CreatedAt.IsZero() {
		credit.CreatedAt = now
	}
	credit.UpdatedAt = now
	credit.Status = domain.CreditStatusActive
	credit.InstallmentCount = len(credit.Installments)
	for i := range credit.Installments {
		if credit.Installments[i].ID == "" {
			credit.Installments[i].ID = xid.New("ins")
		}
		credit.Installments[i].CreditID = credit.ID
	}
	credit.OutstandingCents = ledger.RecomputeOutstanding(credit.Installments)
	if err := ledger.CheckInvariants(credit); err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, credit.CustomerID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, credit.CustomerID)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO credits (
			id, store_id, customer_id, sale_reference, total_cents, down_payment_cents,
			outstanding_cents, installment_count, interval_days, first_due_date, status,
			notes, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, credit.ID, credit.StoreID, credit.CustomerID, nullIfEmpty(credit.SaleReference), credit.TotalCents,
		credit.DownPaymentCents, credit.OutstandingCents, credit.InstallmentCount, credit.IntervalDays,
		ledger.Day(credit.FirstDueDate), credit.Status, nullIfEmpty(credit.Notes), credit.CreatedBy,
		credit.CreatedAt, credit.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for _, inst := range credit.Installments {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO installments (id, credit_id, sequence, due_date, amount_cents, paid_cents, pending_cents, status, paid_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, inst.ID, inst.CreditID, inst.Sequence, ledger.Day(inst.DueDate), inst.AmountCents,
			inst.PaidCents, inst.PendingCents, inst.Status, nullTime(inst.PaidAt))
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &credit, nil
}

func (s *Store) GetCredit(ctx context.Context, id string) (*domain.Credit, error) {
	return loadCredit(ctx, s.db, id, false)
}

func (s *Store) ListCredits(ctx context.Context, filter domain.CreditFilter) ([]domain.Credit, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	i := 1
	if filter.CustomerID != "" {
		where = append(where, fmt.Sprintf("customer_id = $%d", i))
		args = append(args, filter.CustomerID)
		i++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", i))
		args = append(args, filter.Status)
		i++
	}
	query := `SELECT ` + creditColumns + ` FROM credits`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", i)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]domain.Credit, 0, limit)
	index := make(map[string]int, limit)
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		index[credit.ID] = len(credits)
		credits = append(credits, credit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(credits) == 0 {
		return credits, nil
	}

	ids := make([]string, 0, len(credits))
	for _, credit := range credits {
		ids = append(ids, credit.ID)
	}
	instRows, err := s.db.QueryContext(ctx, `
		SELECT `+installmentColumns+`
		FROM installments
		WHERE credit_id = ANY($1)
		ORDER BY credit_id, sequence
	`, ids)
	if err != nil {
		return nil, err
	}
	defer instRows.Close()
	for instRows.Next() {
		inst, err := scanInstallment(instRows)
		if err != nil {
			return nil, err
		}
		pos := index[inst.CreditID]
		credits[pos].Installments = append(credits[pos].Installments, inst)
	}
	if err := instRows.Err(); err != nil {
		return nil, err
	}
	return credits, nil
}

func (s *Store) ApplyPayment(ctx context.Context, creditID string, intent store.PaymentIntent) (*store.PaymentOutcome, error) {
	out, err := s.applyPayment(ctx, creditID, intent)
	if err != nil && isSerializationFailure(err) {
		return nil, fmt.Errorf("%w: concurrent payment on credit %s, retry", store.ErrConflict, creditID)
	}
	return out, err
}

func (s *Store) applyPayment(ctx context.Context, creditID string, intent store.PaymentIntent) (*store.PaymentOutcome, error) {
	if strings.TrimSpace(intent.IdempotencyKey) == "" {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	credit, err := loadCredit(ctx, pgTx, creditID, true)
	if err != nil {
		return nil, err
	}

	existing, err := findPayment(ctx, pgTx, "idempotency_key", intent.IdempotencyKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if existing.CreditID != creditID || existing.TenderedCents() != intent.AmountCents {
			return nil, fmt.Errorf("%w: idempotency key %s already used for another payment", store.ErrConflict, intent.IdempotencyKey)
		}
		return &store.PaymentOutcome{Payment: *existing, Credit: *credit, Duplicate: true}, nil
	}

	app, err := ledger.ApplyPayment(credit, intent.AmountCents, intent.PaidOn)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	credit.UpdatedAt = now
	payment := domain.Payment{
		ID:             xid.New("pay"),
		CreditID:       credit.ID,
		CustomerID:     credit.CustomerID,
		StoreID:        credit.StoreID,
		IdempotencyKey: intent.IdempotencyKey,
		AmountCents:    app.AppliedCents,
		ExcessCents:    app.ExcessCents,
		Method:         intent.Method,
		Reference:      intent.Reference,
		Notes:          intent.Notes,
		PaidOn:         ledger.Day(intent.PaidOn),
		RecordedBy:     intent.RecordedBy,
		CreatedAt:      now,
		Allocations:    make([]domain.PaymentAllocation, 0, len(app.Allocations)),
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO payments (
			id, credit_id, customer_id, store_id, idempotency_key, amount_cents, excess_cents,
			method, reference, notes, paid_on, recorded_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, payment.ID, payment.CreditID, payment.CustomerID, payment.StoreID, payment.IdempotencyKey,
		payment.AmountCents, payment.ExcessCents, payment.Method, nullIfEmpty(payment.Reference),
		nullIfEmpty(payment.Notes), payment.PaidOn, payment.RecordedBy, payment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: idempotency key %s already used", store.ErrConflict, intent.IdempotencyKey)
		}
		return nil, err
	}

	touched := make(map[string]struct{}, len(app.Allocations))
	for _, alloc := range app.Allocations {
		alloc.PaymentID = payment.ID
		payment.Allocations = append(payment.Allocations, alloc)
		touched[alloc.InstallmentID] = struct{}{}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO payment_allocations (payment_id, installment_id, installment_sequence, amount_cents)
			VALUES ($1,$2,$3,$4)
		`, alloc.PaymentID, alloc.InstallmentID, alloc.InstallmentSequence, alloc.AmountCents)
		if err != nil {
			return nil, err
		}
	}

	for _, inst := range credit.Installments {
		if _, ok := touched[inst.ID]; !ok {
			continue
		}
		if err := updateInstallment(ctx, pgTx, inst); err != nil {
			return nil, err
		}
	}
	if err := updateCredit(ctx, pgTx, *credit); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &store.PaymentOutcome{Payment: payment, Credit: *credit}, nil
}

func (s *Store) VoidCredit(ctx context.Context, creditID string, actor string, reason string, at time.Time) (*domain.Credit, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	credit, err := loadCredit(ctx, pgTx, creditID, true)
	if err != nil {
		return nil, err
	}
	if err := ledger.Void(credit, actor, reason, at); err != nil {
		return nil, err
	}
	credit.UpdatedAt = time.Now().UTC()

	if _, err := pgTx.ExecContext(ctx, `UPDATE installments SET pending_cents = 0 WHERE credit_id = $1`, creditID); err != nil {
		return nil, err
	}
	if err := updateCredit(ctx, pgTx, *credit); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return credit, nil
}

func (s *Store) FindPaymentByID(ctx context.Context, id string) (*domain.Payment, error) {
	return findPayment(ctx, s.db, "id", id)
}

func (s *Store) FindPaymentByIdempotency(ctx context.Context, key string) (*domain.Payment, error) {
	return findPayment(ctx, s.db, "idempotency_key", key)
}

func (s *Store) ListPayments(ctx context.Context, creditID string) ([]domain.Payment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM credits WHERE id = $1)`, creditID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE credit_id = $1
		ORDER BY created_at ASC, id
	`, creditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 8)
	index := make(map[string]int, 8)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		index[payment.ID] = len(payments)
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	allocRows, err := s.db.QueryContext(ctx, `
		SELECT a.payment_id, a.installment_id, a.installment_sequence, a.amount_cents
		FROM payment_allocations a
		JOIN payments p ON p.id = a.payment_id
		WHERE p.credit_id = $1
		ORDER BY a.payment_id, a.installment_sequence
	`, creditID)
	if err != nil {
		return nil, err
	}
	defer allocRows.Close()
	for allocRows.Next() {
		var alloc domain.PaymentAllocation
		if err := allocRows.Scan(&alloc.PaymentID, &alloc.InstallmentID, &alloc.InstallmentSequence, &alloc.AmountCents); err != nil {
			return nil, err
		}
		if pos, ok := index[alloc.PaymentID]; ok {
			payments[pos].Allocations = append(payments[pos].Allocations, alloc)
		}
	}
	if err := allocRows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) ListOverdueInstallments(ctx context.Context, asOf time.Time, customerID string, limit int) (domain.InstallmentPage, error) {
	day := ledger.Day(asOf)
	return s.listInstallmentRows(ctx, "i.due_date < $1", []any{day}, customerID, limit, day)
}

func (s *Store) ListInstallmentsDue(ctx context.Context, query domain.InstallmentQuery) (domain.InstallmentPage, error) {
	from, to := ledger.Day(query.From), ledger.Day(query.To)
	return s.listInstallmentRows(ctx, "i.due_date BETWEEN $1 AND $2", []any{from, to}, query.CustomerID, query.Limit, from)
}

// listInstallmentRows pages matching installments. The window aggregates are
// computed before LIMIT, so the totals cover every matching row.
func (s *Store) listInstallmentRows(ctx context.Context, dueClause string, args []any, customerID string, limit int, asOf time.Time) (domain.InstallmentPage, error) {
	query := `
		SELECT c.id, c.customer_id, cu.full_name, i.id, i.sequence, i.due_date, i.amount_cents, i.pending_cents, i.status,
			COUNT(*) OVER (), (SUM(i.pending_cents) OVER ())::BIGINT
		FROM installments i
		JOIN credits c ON c.id = i.credit_id
		JOIN customers cu ON cu.id = c.customer_id
		WHERE c.status = 'active'
			AND i.pending_cents > 0
			AND ` + dueClause
	if customerID != "" {
		args = append(args, customerID)
		query += fmt.Sprintf(" AND c.customer_id = $%d", len(args))
	}
	query += " ORDER BY i.due_date ASC, c.id ASC, i.sequence ASC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.InstallmentPage{}, err
	}
	defer rows.Close()

	page := domain.InstallmentPage{Rows: make([]domain.OverdueInstallment, 0, 16)}
	for rows.Next() {
		var row domain.OverdueInstallment
		var status string
		if err := rows.Scan(&row.CreditID, &row.CustomerID, &row.CustomerName, &row.InstallmentID, &row.Sequence,
			&row.DueDate, &row.AmountCents, &row.PendingCents, &status, &page.TotalRows, &page.TotalPendingCents); err != nil {
			return domain.InstallmentPage{}, err
		}
		row.DueDate = ledger.Day(row.DueDate)
		row.DaysOverdue = ledger.DaysOverdue(domain.Installment{
			DueDate:      row.DueDate,
			AmountCents:  row.AmountCents,
			PendingCents: row.PendingCents,
			Status:       status,
		}, asOf)
		page.Rows = append(page.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return domain.InstallmentPage{}, err
	}
	return page, nil
}

func (s *Store) GetDebtSummary(ctx context.Context, storeID string, asOf time.Time) (domain.DebtSummary, error) {
	day := ledger.Day(asOf)
	summary := domain.DebtSummary{StoreID: storeID, AsOf: day.Format("2006-01-02")}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(outstanding_cents), 0)
		FROM credits
		WHERE store_id = $1
		GROUP BY status
	`, storeID)
	if err != nil {
		return summary, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		var outstanding int64
		if err := rows.Scan(&status, &count, &outstanding); err != nil {
			return summary, err
		}
		switch status {
		case domain.CreditStatusActive:
			summary.ActiveCredits = count
			summary.TotalOutstandingCents = outstanding
		case domain.CreditStatusCompleted:
			summary.CompletedCredits = count
		case domain.CreditStatusVoid:
			summary.VoidCredits = count
		}
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE i.due_date < $2),
			COALESCE(SUM(i.pending_cents) FILTER (WHERE i.due_date < $2), 0),
			COUNT(DISTINCT i.credit_id) FILTER (WHERE i.due_date < $2),
			COUNT(*) FILTER (WHERE i.due_date = $2),
			COALESCE(SUM(i.pending_cents) FILTER (WHERE i.due_date = $2), 0)
		FROM installments i
		JOIN credits c ON c.id = i.credit_id
		WHERE c.store_id = $1
			AND c.status = 'active'
			AND i.pending_cents > 0
	`, storeID, day).Scan(
		&summary.OverdueInstallments,
		&summary.OverduePendingCents,
		&summary.CreditsWithOverdue,
		&summary.DueTodayInstallments,
		&summary.DueTodayPendingCents,
	)
	if err != nil {
		return summary, err
	}
	return summary, nil
}

const customerDebtQuery = `
	SELECT
		cu.id, cu.full_name, cu.document_number,
		COUNT(DISTINCT c.id) FILTER (WHERE c.status = 'active'),
		COALESCE(SUM(i.pending_cents) FILTER (WHERE c.status = 'active'), 0),
		COALESCE(SUM(i.pending_cents) FILTER (WHERE c.status = 'active' AND i.due_date < $1), 0)
	FROM customers cu
	LEFT JOIN credits c ON c.customer_id = cu.id
	LEFT JOIN installments i ON i.credit_id = c.id
`

func (s *Store) GetCustomerDebt(ctx context.Context, customerID string, asOf time.Time) (domain.CustomerDebt, error) {
	var debt domain.CustomerDebt
	err := s.db.QueryRowContext(ctx, customerDebtQuery+`
		WHERE cu.id = $2
		GROUP BY cu.id, cu.full_name, cu.document_number
	`, ledger.Day(asOf), customerID).Scan(
		&debt.CustomerID, &debt.FullName, &debt.DocumentNumber,
		&debt.ActiveCredits, &debt.OutstandingCents, &debt.OverdueCents,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CustomerDebt{}, store.ErrNotFound
		}
		return domain.CustomerDebt{}, err
	}
	return debt, nil
}

func (s *Store) ListTopDebtors(ctx context.Context, asOf time.Time, limit int) ([]domain.CustomerDebt, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, customerDebtQuery+`
		GROUP BY cu.id, cu.full_name, cu.document_number
		HAVING COALESCE(SUM(i.pending_cents) FILTER (WHERE c.status = 'active'), 0) > 0
		ORDER BY 5 DESC, cu.id
		LIMIT $2
	`, ledger.Day(asOf), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debts := make([]domain.CustomerDebt, 0, limit)
	for rows.Next() {
		var debt domain.CustomerDebt
		if err := rows.Scan(&debt.CustomerID, &debt.FullName, &debt.DocumentNumber,
			&debt.ActiveCredits, &debt.OutstandingCents, &debt.OverdueCents); err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return debts, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE store_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, store_id, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, user.Username, user.Password, user.Role, strings.TrimSpace(user.StoreID), user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, store_id, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.StoreID, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
