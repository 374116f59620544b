package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/money"
	"kasirkredit/backend/internal/store"
)

// BuildPaymentReceipt renders a payment as ESC/POS bytes for a thermal printer
// plus a plain-text preview of the same lines.
func (s *Service) BuildPaymentReceipt(ctx context.Context, paymentID string) (domain.ReceiptResponse, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return domain.ReceiptResponse{}, store.ErrInvalidInput
	}
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	credit, err := s.repo.GetCredit(ctx, payment.CreditID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	customerName := payment.CustomerID
	if customer, err := s.repo.GetCustomer(ctx, payment.CustomerID); err == nil {
		customerName = fmt.Sprintf("%s (%s %s)", customer.FullName, strings.ToUpper(customer.DocumentType), customer.DocumentNumber)
	}

	lines := []string{
		"KasirKredit",
		"========================",
		"Payment: " + payment.ID,
		"Credit: " + credit.ID,
		"Customer: " + customerName,
		"Date: " + payment.PaidOn.Format(dateLayout),
		"Method: " + payment.Method,
		"------------------------",
	}
	for _, alloc := range payment.Allocations {
		lines = append(lines, fmt.Sprintf("Installment %d/%d", alloc.InstallmentSequence, credit.InstallmentCount))
		lines = append(lines, "  "+money.Format(s.currency, alloc.AmountCents))
	}
	lines = append(lines,
		"------------------------",
		"Applied    : "+money.Format(s.currency, payment.AmountCents),
		"Excess     : "+money.Format(s.currency, payment.ExcessCents),
		"Outstanding: "+money.Format(s.currency, credit.OutstandingCents),
		"Status     : "+credit.Status,
		"========================",
		"Thank you",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		PaymentID:    payment.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", payment.ID),
	}, nil
}
