package registry

import (
	"context"
	"errors"
)

var (
	ErrDisabled = errors.New("customer registry is not configured")
	ErrNotFound = errors.New("document not found in registry")
)

// Record is what the national registry knows about a document holder.
type Record struct {
	DocumentType   string
	DocumentNumber string
	FullName       string
	Address        string
}

// Client looks up DNI and RUC holders in the national registry.
type Client interface {
	Lookup(ctx context.Context, documentType string, documentNumber string) (Record, error)
}

type NoopClient struct{}

func (NoopClient) Lookup(_ context.Context, _ string, _ string) (Record, error) {
	return Record{}, ErrDisabled
}
