package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "k", 3, now)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d: expected allowed, got %+v %v", i+1, res, err)
		}
		if res.Remaining != 2-i {
			t.Fatalf("request %d: expected remaining=%d, got %d", i+1, 2-i, res.Remaining)
		}
	}
	res, err := limiter.Allow(ctx, "k", 3, now.Add(500*time.Millisecond))
	if err != nil || res.Allowed {
		t.Fatalf("expected fourth request in the window to be rejected, got %+v %v", res, err)
	}
	res, err = limiter.Allow(ctx, "k", 3, now.Add(time.Second))
	if err != nil || !res.Allowed {
		t.Fatalf("expected next window to allow, got %+v %v", res, err)
	}
}

func TestMemoryLimiter_PrunesIdleKeys(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)
	ctx := context.Background()

	for i := 0; i < memoryPruneEvery-1; i++ {
		if _, err := limiter.Allow(ctx, KeyForDecision(ResolveScan(5, uint64(i+1), "")), 5, now); err != nil {
			t.Fatalf("allow: %v", err)
		}
	}
	if _, err := limiter.Allow(ctx, "fresh", 5, now.Add(2*time.Second)); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if got := limiter.Len(); got != 1 {
		t.Fatalf("expected idle keys to be pruned, got %d keys", got)
	}
}

func TestResolveScan_Keys(t *testing.T) {
	if key := KeyForDecision(ResolveScan(10, 7, "203.0.113.9")); key != "scan:s:7:c:203.0.113.9" {
		t.Fatalf("unexpected client key %q", key)
	}
	if key := KeyForDecision(ResolveScan(10, 7, " ")); key != "scan:s:7" {
		t.Fatalf("unexpected subscription key %q", key)
	}
	if key := KeyForDecision(ResolveScan(0, 7, "203.0.113.9")); key != "" {
		t.Fatalf("expected no key when limiting is disabled, got %q", key)
	}
}

func TestManager_FallsBackToMemoryWhenRedisDown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	dialed := 0
	manager := NewManager(
		StaticSettings(Settings{Limit: 2, RedisEnabled: true, RedisAddr: "127.0.0.1:1"}),
		func() time.Time { return now },
		func(options *redis.Options) *redis.Client {
			dialed++
			options.DialTimeout = 100 * time.Millisecond
			options.MaxRetries = -1
			return redis.NewClient(options)
		},
	)
	defer func() { _ = manager.Close() }()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := manager.AllowScan(ctx, 1, "")
		if err != nil || !res.Allowed {
			t.Fatalf("scan %d: expected allowed, got %+v %v", i+1, res, err)
		}
	}
	res, err := manager.AllowScan(ctx, 1, "")
	if err != nil || res.Allowed {
		t.Fatalf("expected third scan to be limited, got %+v %v", res, err)
	}
	if dialed != 1 {
		t.Fatalf("expected the breaker to stop redis redials, got %d dials", dialed)
	}
}

func TestManager_DisabledLimitAllowsEverything(t *testing.T) {
	manager := NewManager(StaticSettings(Settings{}), nil, nil)
	for i := 0; i < 100; i++ {
		res, err := manager.AllowScan(context.Background(), 1, "198.51.100.1")
		if err != nil || !res.Allowed {
			t.Fatalf("expected allowed with limiting disabled, got %+v %v", res, err)
		}
	}
}
