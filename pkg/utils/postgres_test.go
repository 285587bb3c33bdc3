package utils

import (
	"testing"
	"time"
)

func TestPostgresPoolDefaults(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 10}.withDefaults()
	if c.MaxOpenConns != 10 {
		t.Fatalf("expected explicit max open kept, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns != 25 || c.ConnMaxLifetime != 30*time.Minute || c.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", c)
	}
}

func TestWithTxSignature(t *testing.T) {
	// Needs a live database to exercise; keep the helper referenced so
	// signature changes break the build.
	var _ func(TxFunc) = func(TxFunc) {}
	_ = WithTx
}
