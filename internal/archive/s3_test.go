package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNoopStoreIsDisabled(t *testing.T) {
	var s Store = NoopStore{}
	if _, err := s.Upload(context.Background(), "a.xlsx", "text/plain", []byte("x")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}

func TestS3StorePresignsPrefixedKey(t *testing.T) {
	s, err := NewS3Store(S3Config{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
		Bucket:          "reports",
		Region:          "us-east-1",
		Prefix:          "overdue/",
	})
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}

	url, err := s.TemporaryURL(context.Background(), "overdue/overdue_2026-02-11.xlsx", 15*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "/reports/overdue/overdue_2026-02-11.xlsx") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Fatalf("unexpected presigned url %s", url)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(S3Config{Endpoint: "localhost:9000"}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}
