package migrations

import (
	"database/sql"
	"io"
	"os"
	"strings"
	"testing"

	_ "github.com/lib/pq"
)

func TestEmbeddedSourceHasPairedMigrations(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for {
		up, _, err := src.ReadUp(version)
		if err != nil {
			t.Fatalf("read up %d: %v", version, err)
		}
		body, _ := io.ReadAll(up)
		up.Close()
		if !strings.Contains(string(body), "CREATE TABLE") && version == 1 {
			t.Fatalf("migration %d does not create tables", version)
		}

		down, _, err := src.ReadDown(version)
		if err != nil {
			t.Fatalf("migration %d has no down file: %v", version, err)
		}
		down.Close()

		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
}

func TestUpAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres migration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("up: %v", err)
	}
	// Running twice is a no-op.
	if err := Up(db); err != nil {
		t.Fatalf("second up: %v", err)
	}
	if v, dirty, err := Version(db); err != nil || dirty || v == 0 {
		t.Fatalf("version=%d dirty=%v err=%v", v, dirty, err)
	}
}
