package domain

import "time"

const (
	CreditStatusActive    = "active"
	CreditStatusCompleted = "completed"
	CreditStatusVoid      = "void"
)

// Installment statuses. Only pending, partially_paid and paid are ever stored.
// Overdue and cancelled are projected at read time: overdue from the due date
// and pending amount, cancelled for the unpaid installments of a void credit.
const (
	InstallmentStatusPending       = "pending"
	InstallmentStatusPartiallyPaid = "partially_paid"
	InstallmentStatusPaid          = "paid"
	InstallmentStatusOverdue       = "overdue"
	InstallmentStatusCancelled     = "cancelled"
)

const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodTransfer     = "transfer"
	PaymentMethodMobileWallet = "mobile_wallet"
)

const (
	DocumentTypeDNI = "dni"
	DocumentTypeRUC = "ruc"
)

// Actor is the authenticated caller. StoreID is the store the session is
// scoped to; credits, summaries and audit entries default to it.
type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	StoreID  string `json:"store_id"`
}

type Customer struct {
	ID             string    `json:"id"`
	DocumentType   string    `json:"document_type"`
	DocumentNumber string    `json:"document_number"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	Address        string    `json:"address,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	FullName       string `json:"full_name"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	Address        string `json:"address"`
}

type CustomerResolveRequest struct {
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
}

// CustomerResolveResponse reports whether the customer was just registered
// from the national registry.
type CustomerResolveResponse struct {
	Customer Customer `json:"customer"`
	Created  bool     `json:"created"`
}

type Credit struct {
	ID               string        `json:"id"`
	StoreID          string        `json:"store_id"`
	CustomerID       string        `json:"customer_id"`
	SaleReference    string        `json:"sale_reference,omitempty"`
	TotalCents       int64         `json:"total_cents"`
	DownPaymentCents int64         `json:"down_payment_cents"`
	OutstandingCents int64         `json:"outstanding_cents"`
	InstallmentCount int           `json:"installment_count"`
	IntervalDays     int           `json:"interval_days"`
	FirstDueDate     time.Time     `json:"first_due_date"`
	Status           string        `json:"status"`
	Notes            string        `json:"notes,omitempty"`
	CreatedBy        string        `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	VoidedAt         *time.Time    `json:"voided_at,omitempty"`
	VoidedBy         string        `json:"voided_by,omitempty"`
	VoidReason       string        `json:"void_reason,omitempty"`
	Installments     []Installment `json:"installments"`
}

type Installment struct {
	ID           string     `json:"id"`
	CreditID     string     `json:"credit_id"`
	Sequence     int        `json:"sequence"`
	DueDate      time.Time  `json:"due_date"`
	AmountCents  int64      `json:"amount_cents"`
	PaidCents    int64      `json:"paid_cents"`
	PendingCents int64      `json:"pending_cents"`
	Status       string     `json:"status"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
}

type Payment struct {
	ID             string              `json:"id"`
	CreditID       string              `json:"credit_id"`
	CustomerID     string              `json:"customer_id"`
	StoreID        string              `json:"store_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	AmountCents    int64               `json:"amount_cents"`
	ExcessCents    int64               `json:"excess_cents"`
	Method         string              `json:"method"`
	Reference      string              `json:"reference,omitempty"`
	Notes          string              `json:"notes,omitempty"`
	PaidOn         time.Time           `json:"paid_on"`
	RecordedBy     string              `json:"recorded_by"`
	CreatedAt      time.Time           `json:"created_at"`
	Allocations    []PaymentAllocation `json:"allocations"`
}

// TenderedCents is what the customer handed over: the applied amount plus any excess.
func (p Payment) TenderedCents() int64 {
	return p.AmountCents + p.ExcessCents
}

type PaymentAllocation struct {
	PaymentID           string `json:"payment_id"`
	InstallmentID       string `json:"installment_id"`
	InstallmentSequence int    `json:"installment_sequence"`
	AmountCents         int64  `json:"amount_cents"`
}

// CreditProgress summarizes installment states of one credit as of a date.
type CreditProgress struct {
	PaidInstallments    int        `json:"paid_installments"`
	PendingInstallments int        `json:"pending_installments"`
	OverdueInstallments int        `json:"overdue_installments"`
	OverdueCents        int64      `json:"overdue_cents"`
	NextDueDate         *time.Time `json:"next_due_date,omitempty"`
}

type CreditCreateRequest struct {
	StoreID          string `json:"store_id"`
	CustomerID       string `json:"customer_id"`
	SaleReference    string `json:"sale_reference"`
	SaleTotalCents   int64  `json:"sale_total_cents"`
	DownPaymentCents int64  `json:"down_payment_cents"`
	InstallmentCount int    `json:"installment_count"`
	FirstDueDate     string `json:"first_due_date"`
	IntervalDays     int    `json:"interval_days"`
	Notes            string `json:"notes"`
}

type CreditResponse struct {
	Credit   Credit         `json:"credit"`
	Customer *Customer      `json:"customer,omitempty"`
	Progress CreditProgress `json:"progress"`
	AsOf     string         `json:"as_of"`
}

type CreditFilter struct {
	CustomerID string
	Status     string
	Limit      int
}

type CreditListResponse struct {
	Credits []Credit `json:"credits"`
}

type PaymentRequest struct {
	CreditID       string `json:"-"`
	IdempotencyKey string `json:"idempotency_key"`
	AmountCents    int64  `json:"amount_cents"`
	Method         string `json:"method"`
	PaidOn         string `json:"paid_on"`
	Reference      string `json:"reference"`
	Notes          string `json:"notes"`
}

type PaymentResponse struct {
	Payment          Payment `json:"payment"`
	ExcessCents      int64   `json:"excess_cents"`
	OutstandingCents int64   `json:"outstanding_cents"`
	CreditStatus     string  `json:"credit_status"`
	Duplicate        bool    `json:"duplicate"`
}

type PaymentLookupResponse struct {
	Found   bool     `json:"found"`
	Payment *Payment `json:"payment,omitempty"`
}

type PaymentListResponse struct {
	CreditID string    `json:"credit_id"`
	Payments []Payment `json:"payments"`
}

type VoidCreditRequest struct {
	CreditID   string `json:"-"`
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type VoidCreditResponse struct {
	CreditID string `json:"credit_id"`
	Status   string `json:"status"`
	VoidedAt string `json:"voided_at"`
}

// OverdueInstallment is one row of the due-date sweep.
type OverdueInstallment struct {
	CreditID      string    `json:"credit_id"`
	CustomerID    string    `json:"customer_id"`
	CustomerName  string    `json:"customer_name"`
	InstallmentID string    `json:"installment_id"`
	Sequence      int       `json:"sequence"`
	DueDate       time.Time `json:"due_date"`
	AmountCents   int64     `json:"amount_cents"`
	PendingCents  int64     `json:"pending_cents"`
	DaysOverdue   int       `json:"days_overdue"`
}

type InstallmentQuery struct {
	From       time.Time
	To         time.Time
	CustomerID string
	Limit      int
}

// InstallmentPage is one page of an installment listing. The totals cover
// every matching row, not only the page.
type InstallmentPage struct {
	Rows              []OverdueInstallment
	TotalRows         int
	TotalPendingCents int64
}

// SweepResponse lists installments up to the requested limit. TotalRows and
// TotalPendingCents always cover the full result; Truncated is set when rows
// were left out of Installments.
type SweepResponse struct {
	AsOf              string               `json:"as_of"`
	Installments      []OverdueInstallment `json:"installments"`
	TotalRows         int                  `json:"total_rows"`
	TotalPendingCents int64                `json:"total_pending_cents"`
	Truncated         bool                 `json:"truncated"`
}

type DebtSummary struct {
	StoreID               string `json:"store_id"`
	AsOf                  string `json:"as_of"`
	ActiveCredits         int    `json:"active_credits"`
	CompletedCredits      int    `json:"completed_credits"`
	VoidCredits           int    `json:"void_credits"`
	TotalOutstandingCents int64  `json:"total_outstanding_cents"`
	OverdueInstallments   int    `json:"overdue_installments"`
	OverduePendingCents   int64  `json:"overdue_pending_cents"`
	CreditsWithOverdue    int    `json:"credits_with_overdue"`
	DueTodayInstallments  int    `json:"due_today_installments"`
	DueTodayPendingCents  int64  `json:"due_today_pending_cents"`
}

type CustomerDebt struct {
	CustomerID       string `json:"customer_id"`
	FullName         string `json:"full_name"`
	DocumentNumber   string `json:"document_number"`
	ActiveCredits    int    `json:"active_credits"`
	OutstandingCents int64  `json:"outstanding_cents"`
	OverdueCents     int64  `json:"overdue_cents"`
}

type ReceiptResponse struct {
	PaymentID    string `json:"payment_id"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type WorkbookArchiveResponse struct {
	ObjectKey   string `json:"object_key"`
	DownloadURL string `json:"download_url"`
	Rows        int    `json:"rows"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	CSRFToken   string `json:"csrf_token"`
	Role        string `json:"role"`
	StoreID     string `json:"store_id"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is a stored login. An empty StoreID means the default store.
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	StoreID   string    `json:"store_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	StoreID  string `json:"store_id,omitempty"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	StoreID   string    `json:"store_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
