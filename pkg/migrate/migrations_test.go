package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckoutAttemptsMigrationContainsLedgerSchema(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_checkout_attempts.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one checkout attempts migration, got %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TYPE checkout_attempt_status AS ENUM ('in_progress', 'succeeded', 'failed', 'abandoned')",
		"CREATE TABLE IF NOT EXISTS checkout_attempts",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_checkout_attempts_idempotency_key",
		"idx_checkout_attempts_status_created ON checkout_attempts (status, created_at)",
		"DROP TABLE IF EXISTS checkout_attempts",
		"DROP TYPE IF EXISTS checkout_attempt_status",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestValidateDirRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"bad_name.sql":                    "-- +goose Up\n-- +goose Down\n",
		"20260101000000_missing_down.sql": "-- +goose Up\nSELECT 1;\n",
		"20260101000001_unbalanced.sql":   "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
	}
	for name, body := range cases {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := ValidateDir(dir); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Webhook Events!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_webhook_events.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsDuplicateName(t *testing.T) {
	dir := t.TempDir()
	if _, err := CreateSQLMigration(dir, "add_webhook_events"); err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if _, err := CreateSQLMigration(dir, "Add Webhook Events"); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
}
