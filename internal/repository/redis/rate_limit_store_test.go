package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"authz-service/internal/bucketing"
	"authz-service/internal/client"
)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &client.RedisClient{Client: rdb}, mr
}

func TestIncrement_Counts(t *testing.T) {
	rc, _ := newTestClient(t)
	store := NewRateLimitStore(rc, bucketing.NewManager(16))

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		count, resetAt, err := store.Increment(ctx, "user-1:per_minute", time.Minute)
		if err != nil {
			t.Fatalf("Increment error: %v", err)
		}
		if count != want {
			t.Fatalf("count = %d, want %d", count, want)
		}
		until := time.Until(resetAt)
		if until <= 0 || until > time.Minute+time.Second {
			t.Fatalf("resetAt out of range: %s away", until)
		}
	}
}

func TestIncrement_KeysAreBucketed(t *testing.T) {
	rc, mr := newTestClient(t)
	store := NewRateLimitStore(rc, bucketing.NewManager(16))

	if _, _, err := store.Increment(context.Background(), "user-1:per_minute", time.Minute); err != nil {
		t.Fatalf("Increment error: %v", err)
	}

	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one counter key, got %v", keys)
	}
	if !strings.HasPrefix(keys[0], rateLimitPrefix) || !strings.HasSuffix(keys[0], ":user-1:per_minute") {
		t.Fatalf("unexpected key shape: %s", keys[0])
	}
}

func TestIncrement_ExpiryNeverExtended(t *testing.T) {
	rc, mr := newTestClient(t)
	store := NewRateLimitStore(rc, bucketing.NewManager(16))

	ctx := context.Background()
	if _, _, err := store.Increment(ctx, "user-2:per_minute", time.Minute); err != nil {
		t.Fatalf("first Increment error: %v", err)
	}

	mr.FastForward(40 * time.Second)

	count, resetAt, err := store.Increment(ctx, "user-2:per_minute", time.Minute)
	if err != nil {
		t.Fatalf("second Increment error: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	// 40s of the 60s window already elapsed; a fresh expiry would sit a full
	// minute out.
	if remaining := time.Until(resetAt); remaining > 25*time.Second {
		t.Fatalf("window expiry was extended: %s remaining", remaining)
	}
}

func TestIncrement_WindowReset(t *testing.T) {
	rc, mr := newTestClient(t)
	store := NewRateLimitStore(rc, bucketing.NewManager(16))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, _, err := store.Increment(ctx, "user-3:per_minute", time.Minute); err != nil {
			t.Fatalf("Increment error: %v", err)
		}
	}

	mr.FastForward(time.Minute + time.Second)

	count, _, err := store.Increment(ctx, "user-3:per_minute", time.Minute)
	if err != nil {
		t.Fatalf("Increment after reset error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh counter at 1 after window reset, got %d", count)
	}
}

func TestIncrement_StoreDown(t *testing.T) {
	rc, mr := newTestClient(t)
	store := NewRateLimitStore(rc, bucketing.NewManager(16))

	mr.Close()

	if _, _, err := store.Increment(context.Background(), "user-4:per_minute", time.Minute); err == nil {
		t.Fatalf("expected error when store is unreachable")
	}
}
