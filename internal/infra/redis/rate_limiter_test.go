//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"mediaforge/internal/config"
)

type windowFake struct {
	counts  map[string]int64
	windows map[string]time.Duration
	err     error
}

func newWindowFake() *windowFake {
	return &windowFake{counts: map[string]int64{}, windows: map[string]time.Duration{}}
}

func (f *windowFake) HitWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.counts[key]++
	if f.counts[key] == 1 {
		f.windows[key] = window
	}
	return f.counts[key], f.windows[key] / 2, nil
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()

	t.Run("allows up to the limit then refuses with the window remainder", func(t *testing.T) {
		f := newWindowFake()
		rl := NewRateLimiter(f)
		key := DispatchKey("u1", "generate")
		for i := 1; i <= 3; i++ {
			ok, _, err := rl.Allow(ctx, key, 3, time.Minute)
			if err != nil || !ok {
				t.Fatalf("hit %d: ok=%v err=%v", i, ok, err)
			}
		}
		ok, retry, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("fourth hit should be refused")
		}
		if retry != 30*time.Second {
			t.Errorf("retryAfter = %v, want 30s", retry)
		}
	})

	t.Run("non-positive limit disables limiting", func(t *testing.T) {
		f := newWindowFake()
		ok, _, err := NewRateLimiter(f).Allow(ctx, "k", 0, time.Minute)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if len(f.counts) != 0 {
			t.Error("disabled limiter must not touch redis")
		}
	})

	t.Run("keys are per user and route", func(t *testing.T) {
		if DispatchKey("u1", "generate") == DispatchKey("u2", "generate") {
			t.Fatal("users must not share a window")
		}
		if DispatchKey("u1", "generate") == DispatchKey("u1", "train-brand") {
			t.Fatal("routes must not share a window")
		}
	})

	t.Run("redis error is surfaced", func(t *testing.T) {
		f := newWindowFake()
		f.err = errors.New("connection refused")
		ok, _, err := NewRateLimiter(f).Allow(ctx, "k", 1, time.Second)
		if err == nil || ok {
			t.Fatalf("want error and refusal, got ok=%v err=%v", ok, err)
		}
	})
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(config.RedisConfig{URL: "redis://:pw@cache:6380/2"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.Password != "pw" || opts.DB != 2 {
		t.Errorf("unexpected options %+v", opts)
	}
	opts, _ = clientOptions(config.RedisConfig{URL: "localhost:6379", DB: 1})
	if opts.Addr != "localhost:6379" || opts.DB != 1 {
		t.Errorf("bare address not kept: %+v", opts)
	}
}

func TestChannelFor(t *testing.T) {
	if got := ChannelFor("illustration", "abc"); got != "jobs:illustration:abc" {
		t.Fatalf("ChannelFor = %q", got)
	}
}

func TestPayloadOf(t *testing.T) {
	if string(payloadOf(map[string]interface{}{"data": "x"})) != "x" {
		t.Error("string payload")
	}
	if string(payloadOf(map[string]interface{}{"data": []byte("y")})) != "y" {
		t.Error("byte payload")
	}
	if payloadOf(map[string]interface{}{}) != nil {
		t.Error("missing payload should be nil")
	}
}
