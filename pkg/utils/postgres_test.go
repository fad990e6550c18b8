package utils

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	uv := &pgconn.PgError{Code: "23505"}
	if !IsUniqueViolation(uv) {
		t.Error("bare 23505 not detected")
	}
	if !IsUniqueViolation(fmt.Errorf("insert failed: %w", uv)) {
		t.Error("wrapped 23505 not detected")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign-key violation misclassified")
	}
	if IsUniqueViolation(errors.New("plain error")) {
		t.Error("non-pg error misclassified")
	}
	if IsUniqueViolation(nil) {
		t.Error("nil misclassified")
	}
}

func TestPostgresPoolConfigDefaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns <= 0 || got.MaxIdleConns <= 0 {
		t.Errorf("pool sizes not defaulted: %+v", got)
	}
	if got.PingTimeout < time.Second {
		t.Errorf("ping timeout too aggressive: %v", got.PingTimeout)
	}

	// Explicit values survive.
	got = PostgresPoolConfig{MaxOpenConns: 5}.withDefaults()
	if got.MaxOpenConns != 5 {
		t.Errorf("explicit MaxOpenConns overridden: %d", got.MaxOpenConns)
	}
}
