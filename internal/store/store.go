package store

import (
	"context"
	"errors"
	"time"

	"kasirkredit/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// PaymentIntent is a payment request that has not been allocated yet.
type PaymentIntent struct {
	IdempotencyKey string
	AmountCents    int64
	Method         string
	Reference      string
	Notes          string
	PaidOn         time.Time
	RecordedBy     string
}

// PaymentOutcome is what ApplyPayment persisted. Duplicate is set when the
// idempotency key had already been used for the same credit and amount.
type PaymentOutcome struct {
	Payment   domain.Payment
	Credit    domain.Credit
	Duplicate bool
}

type Repository interface {
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByDocument(ctx context.Context, documentType string, documentNumber string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error)

	// CreateCredit stores the credit and its installments atomically.
	CreateCredit(ctx context.Context, credit domain.Credit) (*domain.Credit, error)
	GetCredit(ctx context.Context, id string) (*domain.Credit, error)
	ListCredits(ctx context.Context, filter domain.CreditFilter) ([]domain.Credit, error)
	// ApplyPayment locks the credit, distributes the payment and persists the
	// payment, its allocations, the installments and the credit in one unit.
	ApplyPayment(ctx context.Context, creditID string, intent PaymentIntent) (*PaymentOutcome, error)
	VoidCredit(ctx context.Context, creditID string, actor string, reason string, at time.Time) (*domain.Credit, error)

	FindPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
	FindPaymentByIdempotency(ctx context.Context, key string) (*domain.Payment, error)
	ListPayments(ctx context.Context, creditID string) ([]domain.Payment, error)

	ListOverdueInstallments(ctx context.Context, asOf time.Time, customerID string, limit int) (domain.InstallmentPage, error)
	ListInstallmentsDue(ctx context.Context, query domain.InstallmentQuery) (domain.InstallmentPage, error)
	GetDebtSummary(ctx context.Context, storeID string, asOf time.Time) (domain.DebtSummary, error)
	GetCustomerDebt(ctx context.Context, customerID string, asOf time.Time) (domain.CustomerDebt, error)
	ListTopDebtors(ctx context.Context, asOf time.Time, limit int) ([]domain.CustomerDebt, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
