package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), ttl)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	return cache, s
}

func TestNewRedisCache(t *testing.T) {
	cache, s := setupTestRedis(t, 0)
	defer s.Close()
	defer cache.Close()

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if cache.ttl != defaultTTL {
		t.Errorf("expected default ttl, got %v", cache.ttl)
	}
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestPutAndGet(t *testing.T) {
	cache, s := setupTestRedis(t, time.Hour)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	text := "I has a cat.\n"
	transcript := []byte(`{"event":"progress","line_index":0,"total_lines":1}` + "\n")

	if _, ok, err := cache.Get(ctx, text); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Put(ctx, text, transcript); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := cache.Get(ctx, text)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != string(transcript) {
		t.Errorf("transcript = %q, want %q", got, transcript)
	}
	if ttl := s.TTL(cache.Key(text)); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestEntriesExpire(t *testing.T) {
	cache, s := setupTestRedis(t, time.Minute)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if err := cache.Put(ctx, "text", []byte("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	s.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "text"); ok {
		t.Error("expected entry to expire")
	}
}

func TestInvalidate(t *testing.T) {
	cache, s := setupTestRedis(t, time.Hour)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	_ = cache.Put(ctx, "text", []byte("x"))
	if err := cache.Invalidate(ctx, "text"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if s.Exists(cache.Key("text")) {
		t.Error("key still present after invalidate")
	}
}

func TestKeyDependsOnText(t *testing.T) {
	cache := NewRedisCacheWithClient(nil, time.Minute)
	a, b := cache.Key("same"), cache.Key("same")
	if a != b {
		t.Fatalf("key not stable: %s vs %s", a, b)
	}
	if cache.Key("other") == a {
		t.Fatal("different texts share a key")
	}
	if len(a) != len("inkcheck:transcript:")+64 {
		t.Fatalf("unexpected key %q", a)
	}
}
