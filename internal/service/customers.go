package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"kasirkredit/backend/internal/domain"
	"kasirkredit/backend/internal/registry"
	"kasirkredit/backend/internal/store"
)

func (s *Service) CreateCustomer(ctx context.Context, actor domain.Actor, req domain.CustomerCreateRequest) (domain.Customer, error) {
	customer := domain.Customer{
		DocumentType:   strings.ToLower(strings.TrimSpace(req.DocumentType)),
		DocumentNumber: strings.TrimSpace(req.DocumentNumber),
		FullName:       strings.Join(strings.Fields(req.FullName), " "),
		Phone:          strings.TrimSpace(req.Phone),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Address:        strings.TrimSpace(req.Address),
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}
	if err := validateDocument(customer.DocumentType, customer.DocumentNumber); err != nil {
		return domain.Customer{}, err
	}
	if customer.FullName == "" {
		return domain.Customer{}, fmt.Errorf("%w: full_name is required", store.ErrInvalidInput)
	}
	if customer.Email != "" && !strings.Contains(customer.Email, "@") {
		return domain.Customer{}, fmt.Errorf("%w: email is not valid", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, actor, "", "create_customer", "customer", created.ID, created.DocumentType+":"+created.DocumentNumber)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) LookupCustomerByDocument(ctx context.Context, documentType string, documentNumber string) (domain.Customer, error) {
	documentType = strings.ToLower(strings.TrimSpace(documentType))
	documentNumber = strings.TrimSpace(documentNumber)
	if err := validateDocument(documentType, documentNumber); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.repo.FindCustomerByDocument(ctx, documentType, documentNumber)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

// FindOrCreateCustomer returns the local customer holding the document. When
// there is none it asks the national registry and registers the holder.
// Created reports whether a new customer was stored.
func (s *Service) FindOrCreateCustomer(ctx context.Context, actor domain.Actor, req domain.CustomerResolveRequest) (domain.CustomerResolveResponse, error) {
	documentType := strings.ToLower(strings.TrimSpace(req.DocumentType))
	documentNumber := strings.TrimSpace(req.DocumentNumber)
	if err := validateDocument(documentType, documentNumber); err != nil {
		return domain.CustomerResolveResponse{}, err
	}

	existing, err := s.repo.FindCustomerByDocument(ctx, documentType, documentNumber)
	switch {
	case err == nil:
		return domain.CustomerResolveResponse{Customer: *existing}, nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.CustomerResolveResponse{}, err
	}

	record, err := s.registry.Lookup(ctx, documentType, documentNumber)
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, registry.ErrDisabled):
		return domain.CustomerResolveResponse{}, fmt.Errorf("%w: customer with %s %s", store.ErrNotFound, documentType, documentNumber)
	case err != nil:
		s.log.WithError(err).WithFields(logrus.Fields{"document_type": documentType}).Warn("registry lookup failed")
		return domain.CustomerResolveResponse{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	if record.DocumentNumber != documentNumber {
		return domain.CustomerResolveResponse{}, fmt.Errorf("%w: registry answered for document %s", ErrRegistryUnavailable, record.DocumentNumber)
	}

	customer := domain.Customer{
		DocumentType:   documentType,
		DocumentNumber: documentNumber,
		FullName:       strings.Join(strings.Fields(record.FullName), " "),
		Address:        strings.TrimSpace(record.Address),
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}
	if customer.FullName == "" {
		return domain.CustomerResolveResponse{}, fmt.Errorf("%w: customer with %s %s", store.ErrNotFound, documentType, documentNumber)
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if errors.Is(err, store.ErrConflict) {
		// Another till registered the same document first.
		existing, findErr := s.repo.FindCustomerByDocument(ctx, documentType, documentNumber)
		if findErr != nil {
			return domain.CustomerResolveResponse{}, err
		}
		return domain.CustomerResolveResponse{Customer: *existing}, nil
	}
	if err != nil {
		return domain.CustomerResolveResponse{}, err
	}

	s.logAudit(ctx, actor, "", "create_customer", "customer", created.ID, "registry "+created.DocumentType+":"+created.DocumentNumber)
	return domain.CustomerResolveResponse{Customer: *created, Created: true}, nil
}

func (s *Service) ListCustomers(ctx context.Context, limit int) ([]domain.Customer, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListCustomers(ctx, limit)
}

func (s *Service) CustomerDebt(ctx context.Context, customerID string, asOf string) (domain.CustomerDebt, error) {
	day, err := s.parseDay(asOf, "as_of")
	if err != nil {
		return domain.CustomerDebt{}, err
	}
	return s.repo.GetCustomerDebt(ctx, strings.TrimSpace(customerID), day)
}

// validateDocument accepts an 8-digit DNI or an 11-digit RUC.
func validateDocument(documentType string, number string) error {
	var want int
	switch documentType {
	case domain.DocumentTypeDNI:
		want = 8
	case domain.DocumentTypeRUC:
		want = 11
	default:
		return fmt.Errorf("%w: document_type must be dni or ruc", store.ErrInvalidInput)
	}
	if len(number) != want {
		return fmt.Errorf("%w: %s must have %d digits", store.ErrInvalidInput, documentType, want)
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %s must contain digits only", store.ErrInvalidInput, documentType)
		}
	}
	return nil
}
