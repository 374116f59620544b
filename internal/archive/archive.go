package archive

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("archive storage is not configured")

// Store keeps generated report files and hands out temporary download links.
type Store interface {
	Upload(ctx context.Context, fileName string, contentType string, data []byte) (string, error)
	TemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type NoopStore struct{}

func (NoopStore) Upload(_ context.Context, _ string, _ string, _ []byte) (string, error) {
	return "", ErrDisabled
}

func (NoopStore) TemporaryURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", ErrDisabled
}
