package memory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/ledger"
	"kasirkredit/backend/internal/store"
	"kasirkredit/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	customersByID      map[string]domain.Customer
	customerByDocument map[string]string
	creditsByID        map[string]*domain.Credit
	paymentsByID       map[string]*domain.Payment
	paymentByIdem      map[string]string
	paymentsByCredit   map[string][]string
	auditLogs          []domain.AuditLog
	usersByUsername    map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		customersByID:      make(map[string]domain.Customer),
		customerByDocument: make(map[string]string),
		creditsByID:        make(map[string]*domain.Credit),
		paymentsByID:       make(map[string]*domain.Payment),
		paymentByIdem:      make(map[string]string),
		paymentsByCredit:   make(map[string][]string),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with an admin and a cashier account for dev/demo
// mode. Passwords come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()
	return s
}

func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			logrus.WithField("component", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.DocumentType == "" || customer.DocumentNumber == "" || strings.TrimSpace(customer.FullName) == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := documentKey(customer.DocumentType, customer.DocumentNumber)
	if _, exists := s.customerByDocument[key]; exists {
		return nil, fmt.Errorf("%w: customer with %s %s already exists", store.ErrConflict, customer.DocumentType, customer.DocumentNumber)
	}
	s.customersByID[customer.ID] = customer
	s.customerByDocument[key] = customer.ID
	return &customer, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) FindCustomerByDocument(_ context.Context, documentType string, documentNumber string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.customerByDocument[documentKey(documentType, documentNumber)]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer := s.customersByID[id]
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, customer := range s.customersByID {
		customers = append(customers, customer)
	}
	s.mu.RUnlock()

	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.FullName+a.ID, b.FullName+b.ID)
	})
	if len(customers) > limit {
		customers = customers[:limit]
	}
	return customers, nil
}

func (s *Store) CreateCredit(_ context.Context, credit domain.Credit) (*domain.Credit, error) {
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

	stored := cloneCredit(&credit)
	for i := range stored.Installments {
		if stored.Installments[i].ID == "" {
			stored.Installments[i].ID = xid.New("ins")
		}
		stored.Installments[i].CreditID = stored.ID
	}
	stored.OutstandingCents = ledger.RecomputeOutstanding(stored.Installments)
	if err := ledger.CheckInvariants(*stored); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customersByID[stored.CustomerID]; !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, stored.CustomerID)
	}
	if _, exists := s.creditsByID[stored.ID]; exists {
		return nil, store.ErrConflict
	}
	s.creditsByID[stored.ID] = stored
	return cloneCredit(stored), nil
}

func (s *Store) GetCredit(_ context.Context, id string) (*domain.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credit, ok := s.creditsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCredit(credit), nil
}

func (s *Store) ListCredits(_ context.Context, filter domain.CreditFilter) ([]domain.Credit, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	credits := make([]domain.Credit, 0, len(s.creditsByID))
	for _, credit := range s.creditsByID {
		if filter.CustomerID != "" && credit.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && credit.Status != filter.Status {
			continue
		}
		credits = append(credits, *cloneCredit(credit))
	}
	s.mu.RUnlock()

	slices.SortFunc(credits, func(a, b domain.Credit) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	if len(credits) > limit {
		credits = credits[:limit]
	}
	return credits, nil
}

func (s *Store) ApplyPayment(_ context.Context, creditID string, intent store.PaymentIntent) (*store.PaymentOutcome, error) {
	if strings.TrimSpace(intent.IdempotencyKey) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.creditsByID[creditID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if existingID, used := s.paymentByIdem[intent.IdempotencyKey]; used {
		existing := s.paymentsByID[existingID]
		if existing.CreditID != creditID || existing.TenderedCents() != intent.AmountCents {
			return nil, fmt.Errorf("%w: idempotency key %s already used for another payment", store.ErrConflict, intent.IdempotencyKey)
		}
		return &store.PaymentOutcome{
			Payment:   clonePayment(existing),
			Credit:    *cloneCredit(current),
			Duplicate: true,
		}, nil
	}

	// Work on a copy so a failed application leaves the stored credit untouched.
	working := cloneCredit(current)
	app, err := ledger.ApplyPayment(working, intent.AmountCents, intent.PaidOn)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	working.UpdatedAt = now
	payment := &domain.Payment{
		ID:             xid.New("pay"),
		CreditID:       working.ID,
		CustomerID:     working.CustomerID,
		StoreID:        working.StoreID,
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
	for _, alloc := range app.Allocations {
		alloc.PaymentID = payment.ID
		payment.Allocations = append(payment.Allocations, alloc)
	}

	s.creditsByID[working.ID] = working
	s.paymentsByID[payment.ID] = payment
	s.paymentByIdem[payment.IdempotencyKey] = payment.ID
	s.paymentsByCredit[working.ID] = append(s.paymentsByCredit[working.ID], payment.ID)

	return &store.PaymentOutcome{
		Payment: clonePayment(payment),
		Credit:  *cloneCredit(working),
	}, nil
}

func (s *Store) VoidCredit(_ context.Context, creditID string, actor string, reason string, at time.Time) (*domain.Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.creditsByID[creditID]
	if !ok {
		return nil, store.ErrNotFound
	}

	working := cloneCredit(current)
	if err := ledger.Void(working, actor, reason, at); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	s.creditsByID[creditID] = working
	return cloneCredit(working), nil
}

func (s *Store) FindPaymentByID(_ context.Context, id string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.paymentsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePayment(payment)
	return &out, nil
}

func (s *Store) FindPaymentByIdempotency(_ context.Context, key string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paymentByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := clonePayment(s.paymentsByID[id])
	return &out, nil
}

func (s *Store) ListPayments(_ context.Context, creditID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.creditsByID[creditID]; !ok {
		return nil, store.ErrNotFound
	}
	ids := s.paymentsByCredit[creditID]
	payments := make([]domain.Payment, 0, len(ids))
	for _, id := range ids {
		payments = append(payments, clonePayment(s.paymentsByID[id]))
	}
	return payments, nil
}

func (s *Store) ListOverdueInstallments(_ context.Context, asOf time.Time, customerID string, limit int) (domain.InstallmentPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := ledger.Sweep(s.creditSnapshot(), asOf, customerID)
	return s.page(rows, limit), nil
}

func (s *Store) ListInstallmentsDue(_ context.Context, query domain.InstallmentQuery) (domain.InstallmentPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := ledger.DueBetween(s.creditSnapshot(), query.From, query.To, query.CustomerID)
	return s.page(rows, query.Limit), nil
}

// page totals every row before cutting to limit. Must be called with s.mu held.
func (s *Store) page(rows []domain.OverdueInstallment, limit int) domain.InstallmentPage {
	out := domain.InstallmentPage{TotalRows: len(rows)}
	for _, row := range rows {
		out.TotalPendingCents += row.PendingCents
	}
	out.Rows = s.decorate(limitRows(rows, limit))
	return out
}

func (s *Store) GetDebtSummary(_ context.Context, storeID string, asOf time.Time) (domain.DebtSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DebtSummary{StoreID: storeID, AsOf: ledger.Day(asOf).Format("2006-01-02")}
	today := ledger.Day(asOf)
	for _, credit := range s.creditsByID {
		if storeID != "" && credit.StoreID != storeID {
			continue
		}
		switch credit.Status {
		case domain.CreditStatusCompleted:
			summary.CompletedCredits++
			continue
		case domain.CreditStatusVoid:
			summary.VoidCredits++
			continue
		}

		summary.ActiveCredits++
		summary.TotalOutstandingCents += credit.OutstandingCents
		hasOverdue := false
		for _, inst := range credit.Installments {
			if ledger.IsOverdue(inst.Status, inst.DueDate, inst.PendingCents, asOf) {
				summary.OverdueInstallments++
				summary.OverduePendingCents += inst.PendingCents
				hasOverdue = true
			}
			if inst.PendingCents > 0 && ledger.Day(inst.DueDate).Equal(today) {
				summary.DueTodayInstallments++
				summary.DueTodayPendingCents += inst.PendingCents
			}
		}
		if hasOverdue {
			summary.CreditsWithOverdue++
		}
	}
	return summary, nil
}

func (s *Store) GetCustomerDebt(_ context.Context, customerID string, asOf time.Time) (domain.CustomerDebt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customersByID[customerID]
	if !ok {
		return domain.CustomerDebt{}, store.ErrNotFound
	}
	debts := s.debtByCustomer(asOf)
	if debt, ok := debts[customerID]; ok {
		return debt, nil
	}
	return domain.CustomerDebt{
		CustomerID:     customer.ID,
		FullName:       customer.FullName,
		DocumentNumber: customer.DocumentNumber,
	}, nil
}

func (s *Store) ListTopDebtors(_ context.Context, asOf time.Time, limit int) ([]domain.CustomerDebt, error) {
	if limit < 1 {
		limit = 10
	}

	s.mu.RLock()
	debts := s.debtByCustomer(asOf)
	s.mu.RUnlock()

	rows := make([]domain.CustomerDebt, 0, len(debts))
	for _, debt := range debts {
		if debt.OutstandingCents > 0 {
			rows = append(rows, debt)
		}
	}
	slices.SortFunc(rows, func(a, b domain.CustomerDebt) int {
		if a.OutstandingCents != b.OutstandingCents {
			if a.OutstandingCents > b.OutstandingCents {
				return -1
			}
			return 1
		}
		return cmpString(a.CustomerID, b.CustomerID)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.auditLogs = append(s.auditLogs, entry)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	s.mu.RUnlock()
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	s.mu.RUnlock()

	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// creditSnapshot must be called with s.mu held.
func (s *Store) creditSnapshot() []domain.Credit {
	credits := make([]domain.Credit, 0, len(s.creditsByID))
	for _, credit := range s.creditsByID {
		credits = append(credits, *credit)
	}
	return credits
}

// decorate fills customer names; must be called with s.mu held.
func (s *Store) decorate(rows []domain.OverdueInstallment) []domain.OverdueInstallment {
	for i := range rows {
		rows[i].CustomerName = s.customersByID[rows[i].CustomerID].FullName
	}
	return rows
}

// debtByCustomer must be called with s.mu held.
func (s *Store) debtByCustomer(asOf time.Time) map[string]domain.CustomerDebt {
	debts := make(map[string]domain.CustomerDebt)
	for _, credit := range s.creditsByID {
		if credit.Status != domain.CreditStatusActive {
			continue
		}
		debt, ok := debts[credit.CustomerID]
		if !ok {
			customer := s.customersByID[credit.CustomerID]
			debt = domain.CustomerDebt{
				CustomerID:     credit.CustomerID,
				FullName:       customer.FullName,
				DocumentNumber: customer.DocumentNumber,
			}
		}
		debt.ActiveCredits++
		debt.OutstandingCents += credit.OutstandingCents
		for _, inst := range credit.Installments {
			if ledger.IsOverdue(inst.Status, inst.DueDate, inst.PendingCents, asOf) {
				debt.OverdueCents += inst.PendingCents
			}
		}
		debts[credit.CustomerID] = debt
	}
	return debts
}

func documentKey(documentType string, documentNumber string) string {
	return documentType + ":" + documentNumber
}

func limitRows(rows []domain.OverdueInstallment, limit int) []domain.OverdueInstallment {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneCredit(src *domain.Credit) *domain.Credit {
	out := *src
	out.Installments = make([]domain.Installment, len(src.Installments))
	for i, inst := range src.Installments {
		out.Installments[i] = inst
		if inst.PaidAt != nil {
			at := *inst.PaidAt
			out.Installments[i].PaidAt = &at
		}
	}
	if src.CompletedAt != nil {
		at := *src.CompletedAt
		out.CompletedAt = &at
	}
	if src.VoidedAt != nil {
		at := *src.VoidedAt
		out.VoidedAt = &at
	}
	return &out
}

func clonePayment(src *domain.Payment) domain.Payment {
	out := *src
	out.Allocations = append([]domain.PaymentAllocation(nil), src.Allocations...)
	return out
}
