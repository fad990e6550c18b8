package utils

import (
	"context"
	"testing"
	"time"
)

func TestConcurrencyScriptsCompile(t *testing.T) {
	// Compile-time smoke test: scripts should be initialized.
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestAcquireConcurrencyCap_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Minute); err == nil {
		t.Error("nil client accepted")
	}
	if err := ReleaseConcurrencyCap(ctx, nil, "k"); err == nil {
		t.Error("nil client accepted on release")
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if got.DialTimeout <= 0 || got.ReadTimeout <= 0 || got.WriteTimeout <= 0 {
		t.Errorf("timeouts not defaulted: %+v", got)
	}
	if got.PoolSize <= 0 {
		t.Errorf("pool size not defaulted: %d", got.PoolSize)
	}
}
