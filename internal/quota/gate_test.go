package quota

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newGate(t *testing.T, opts Options) (*miniredis.Miniredis, *Gate) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	opts.Client = client
	return mr, NewGate(opts)
}

func TestTryConsumeAllowsExactlyLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mr, gate := newGate(t, Options{Limit: 3, Window: 24 * time.Hour, Now: func() time.Time { return now }})
	ctx := context.Background()
	caller := Caller{Fingerprint: "203.0.113.7"}

	for i := 1; i <= 3; i++ {
		ok, err := gate.TryConsume(ctx, caller)
		if err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
		if !ok {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	ok, err := gate.TryConsume(ctx, caller)
	if err != nil {
		t.Fatalf("call 4 returned error: %v", err)
	}
	if ok {
		t.Fatalf("call 4 should be rejected")
	}

	if got := mr.HGet("quota:203.0.113.7", "count"); got != "3" {
		t.Fatalf("rejected call must not mutate the counter, count=%s", got)
	}
	if got := mr.HGet("quota:203.0.113.7", "expires_at"); got != "1772452800" {
		t.Fatalf("expires_at = %s", got)
	}
	if ttl := mr.TTL("quota:203.0.113.7"); ttl != 24*time.Hour {
		t.Fatalf("ttl = %s, want 24h", ttl)
	}
}

func TestTryConsumeResetsAfterWindow(t *testing.T) {
	mr, gate := newGate(t, Options{Limit: 2, Window: 24 * time.Hour})
	ctx := context.Background()
	caller := Caller{Fingerprint: "198.51.100.1"}

	for i := 0; i < 2; i++ {
		if ok, _ := gate.TryConsume(ctx, caller); !ok {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	mr.FastForward(time.Hour)
	if ok, _ := gate.TryConsume(ctx, caller); ok {
		t.Fatalf("counter must still block inside the window")
	}
	if ttl := mr.TTL("quota:198.51.100.1"); ttl != 23*time.Hour {
		t.Fatalf("ttl must not be refreshed by later calls, got %s", ttl)
	}

	mr.FastForward(23*time.Hour + time.Second)
	ok, err := gate.TryConsume(ctx, caller)
	if err != nil {
		t.Fatalf("TryConsume returned error: %v", err)
	}
	if !ok {
		t.Fatalf("call after the window should be allowed")
	}
}

func TestTryConsumeFingerprintsAreIndependent(t *testing.T) {
	_, gate := newGate(t, Options{Limit: 1})
	ctx := context.Background()
	if ok, _ := gate.TryConsume(ctx, Caller{Fingerprint: "a"}); !ok {
		t.Fatalf("first caller should be allowed")
	}
	if ok, _ := gate.TryConsume(ctx, Caller{Fingerprint: "b"}); !ok {
		t.Fatalf("second caller should be allowed")
	}
}

func TestTryConsumeAuthenticatedBypass(t *testing.T) {
	mr, gate := newGate(t, Options{Limit: 0})
	ok, err := gate.TryConsume(context.Background(), Caller{CallerID: "user-1", Fingerprint: "203.0.113.7"})
	if err != nil || !ok {
		t.Fatalf("authenticated caller should pass, ok=%v err=%v", ok, err)
	}
	if mr.Exists("quota:203.0.113.7") {
		t.Fatalf("authenticated caller must not touch the cache")
	}
}

func TestTryConsumeFailsClosed(t *testing.T) {
	mr, gate := newGate(t, Options{Limit: 3})
	mr.Close()
	ok, err := gate.TryConsume(context.Background(), Caller{Fingerprint: "203.0.113.7"})
	if err == nil {
		t.Fatalf("expected error when cache is down")
	}
	if ok {
		t.Fatalf("gate must fail closed by default")
	}
}

func TestTryConsumeFailOpenPolicy(t *testing.T) {
	mr, gate := newGate(t, Options{Limit: 3, FailOpen: true})
	mr.Close()
	ok, err := gate.TryConsume(context.Background(), Caller{Fingerprint: "203.0.113.7"})
	if err == nil {
		t.Fatalf("expected error when cache is down")
	}
	if !ok {
		t.Fatalf("fail-open gate should admit the call")
	}
}

func TestRemaining(t *testing.T) {
	_, gate := newGate(t, Options{Limit: 3})
	ctx := context.Background()
	left, err := gate.Remaining(ctx, "fresh")
	if err != nil || left != 3 {
		t.Fatalf("Remaining(fresh) = %d, %v", left, err)
	}
	_, _ = gate.TryConsume(ctx, Caller{Fingerprint: "fresh"})
	left, err = gate.Remaining(ctx, "fresh")
	if err != nil || left != 2 {
		t.Fatalf("Remaining after one call = %d, %v", left, err)
	}
}
