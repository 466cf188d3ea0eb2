package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/majidshakoor42/rozanahisab/internal/store"
)

func TestSetManyRoundTripAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("KHATA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KHATA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Clear(ctx)
		_ = s.Close()
	})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, err := s.Get(ctx, store.KeySales); err != nil || ok {
		t.Fatalf("expected missing key after clear, ok=%v err=%v", ok, err)
	}

	err = s.SetMany(ctx, map[string]string{
		store.KeySales:    `[{"sale_id":"sal_1"}]`,
		store.KeyPayments: `[]`,
	})
	if err != nil {
		t.Fatalf("set many: %v", err)
	}
	if err := store.Set(ctx, s, store.KeySales, `[]`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	val, ok, err := s.Get(ctx, store.KeySales)
	if err != nil || !ok {
		t.Fatalf("get sales: ok=%v err=%v", ok, err)
	}
	if val != `[]` {
		t.Fatalf("expected overwritten value, got %s", val)
	}
}

func TestIsSerializationFailure(t *testing.T) {
	if !isSerializationFailure(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected 40001 to be a serialization failure")
	}
	if isSerializationFailure(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation must not be retried")
	}
	if isSerializationFailure(errors.New("boom")) {
		t.Fatalf("plain error must not be retried")
	}
}
