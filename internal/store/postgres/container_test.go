package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	containerOnce sync.Once
	container     *tcpostgres.PostgresContainer
	containerURL  string
	containerErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = container.Terminate(ctx)
		cancel()
	}
	os.Exit(code)
}

// integrationDatabaseURL prefers KASIRKREDIT_TEST_DATABASE_URL and otherwise
// starts one throwaway postgres container shared by the package's tests.
func integrationDatabaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("KASIRKREDIT_TEST_DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("postgres integration tests need docker or KASIRKREDIT_TEST_DATABASE_URL")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		container, containerErr = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("kasirkredit"),
			tcpostgres.WithUsername("kredit"),
			tcpostgres.WithPassword("kredit"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if containerErr != nil {
			return
		}
		containerURL, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}
	return containerURL
}
