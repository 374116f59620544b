package postgres

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestMigrationURLUsesPgxScheme(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/kredit?sslmode=disable": "pgx5://u:p@db:5432/kredit?sslmode=disable",
		"postgresql://db/kredit":                        "pgx5://db/kredit",
		"pgx5://db/kredit":                              "pgx5://db/kredit",
	}
	for in, want := range cases {
		if got := migrationURL(in); got != want {
			t.Fatalf("migrationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired up/down migrations, got %d up and %d down", ups, downs)
	}
}

func TestLatestEmbeddedVersion(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("open migrations: %v", err)
	}
	latest, err := latestVersion(src)
	if err != nil {
		t.Fatalf("latest version: %v", err)
	}
	if latest != 2 {
		t.Fatalf("expected latest version 2, got %d", latest)
	}
}

func TestMigrationOutcomeIgnoresLateCancellation(t *testing.T) {
	if err := migrationOutcome(2, false, 2, context.DeadlineExceeded); err != nil {
		t.Fatalf("completed migration must succeed after ctx expiry, got %v", err)
	}
	if err := migrationOutcome(2, false, 2, nil); err != nil {
		t.Fatalf("completed migration must succeed, got %v", err)
	}

	err := migrationOutcome(1, false, 2, context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("interrupted migration must report cancellation, got %v", err)
	}
	if err := migrationOutcome(2, true, 2, nil); err == nil {
		t.Fatalf("dirty schema must fail")
	}
	if err := migrationOutcome(1, false, 2, nil); err == nil {
		t.Fatalf("schema behind latest must fail")
	}
}
