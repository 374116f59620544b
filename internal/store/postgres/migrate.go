package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5 scheme
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate brings the schema up to the latest embedded migration. The
// migrator opens its own connection from the store's URL. Cancelling ctx
// stops between migrations.
func (s *Store) Migrate(ctx context.Context) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: open migrations: %w", err)
	}
	latest, err := latestVersion(src)
	if err != nil {
		return fmt.Errorf("postgres: read migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(s.url))
	if err != nil {
		return fmt.Errorf("postgres: create migrator: %w", err)
	}
	defer m.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.GracefulStop <- true
		case <-done:
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: run migrations up: %w", err)
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty, err = 0, false, nil
	}
	if err != nil {
		return fmt.Errorf("postgres: read schema version: %w", err)
	}
	return migrationOutcome(version, dirty, latest, ctx.Err())
}

// migrationOutcome judges a finished Up by the schema version it reached. A
// graceful stop also makes Up return nil, so ctxErr only matters when the
// schema is behind.
func migrationOutcome(version uint, dirty bool, latest uint, ctxErr error) error {
	switch {
	case dirty:
		return fmt.Errorf("postgres: schema version %d is dirty", version)
	case version >= latest:
		return nil
	case ctxErr != nil:
		return fmt.Errorf("postgres: migrations stopped at version %d of %d: %w", version, latest, ctxErr)
	default:
		return fmt.Errorf("postgres: migrations stopped at version %d of %d", version, latest)
	}
}

func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, err
		}
		version = next
	}
}

// migrationURL rewrites a libpq style URL to the scheme of the pgx/v5
// migrate driver.
func migrationURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}
