package lock

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := NewRedisLock(RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestRedisLockMutualExclusion(t *testing.T) {
	l, _ := newTestRedisLock(t)
	ctx := t.Context()

	h1, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 5*time.Minute)
	if err != nil || !ok || h1 == nil {
		t.Fatalf("first TryAcquire: handle=%v ok=%v err=%v", h1, ok, err)
	}

	h2, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 5*time.Minute)
	if err != nil {
		t.Fatalf("second TryAcquire: %v", err)
	}
	if ok || h2 != nil {
		t.Fatalf("second TryAcquire should fail while held, got ok=%v handle=%v", ok, h2)
	}
}

func TestRedisLockReleaseThenReacquire(t *testing.T) {
	l, _ := newTestRedisLock(t)
	ctx := t.Context()

	h1, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	if err := h1.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	h2, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 5*time.Minute)
	if err != nil || !ok || h2 == nil {
		t.Fatalf("re-acquire after release: handle=%v ok=%v err=%v", h2, ok, err)
	}
}

func TestRedisLockTryRenewFailsForLostOwnership(t *testing.T) {
	l, mr := newTestRedisLock(t)
	ctx := t.Context()

	h1, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 100*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}

	mr.FastForward(150 * time.Millisecond)

	h2, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 5*time.Minute)
	if err != nil || !ok || h2 == nil {
		t.Fatalf("re-acquire after expiry: handle=%v ok=%v err=%v", h2, ok, err)
	}

	renewed, err := h1.TryRenew(ctx, 5*time.Minute)
	if err != nil {
		t.Fatalf("TryRenew: %v", err)
	}
	if renewed {
		t.Fatalf("expected stale handle's TryRenew to fail once ownership changed")
	}
}

func TestRedisLockReleaseNoOpWhenNotOwner(t *testing.T) {
	l, mr := newTestRedisLock(t)
	ctx := t.Context()

	h1, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 100*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("TryAcquire: ok=%v err=%v", ok, err)
	}
	mr.FastForward(150 * time.Millisecond)

	h2, ok, err := l.TryAcquire(ctx, "cleanse-analysis", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("re-acquire: ok=%v err=%v", ok, err)
	}

	if err := h1.Release(ctx); err != nil {
		t.Fatalf("stale Release should be a no-op, not an error: %v", err)
	}

	renewed, err := h2.TryRenew(ctx, 5*time.Minute)
	if err != nil || !renewed {
		t.Fatalf("current holder's renew should still succeed after stale release: renewed=%v err=%v", renewed, err)
	}
}
