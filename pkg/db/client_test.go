package db

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/ravewear-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/ravewear-storefront/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error for empty DSN, got %v", err)
	}
}

func TestTunePool(t *testing.T) {
	db := newTestDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	tunePool(sqlDB, config.DBConfig{MaxOpenConns: 3})
	if got := sqlDB.Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("expected max open 3, got %d", got)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}
	if !IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "ux_checkout_attempts_idempotency_key"`), "") {
		t.Fatal("expected postgres violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: checkout_attempts.idempotency_key"), "") {
		t.Fatal("expected sqlite violation")
	}
	if IsUniqueViolation(errors.New("connection refused"), "ux_checkout_attempts_idempotency_key") {
		t.Fatal("unexpected match")
	}
}
