package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Nop must always miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRedis_BadURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not a url", "slots:"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

// Runs against a real server when REDIS_TEST_URL is set.
func TestRedis_RoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, url, "test:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()

	if err := r.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok, err := r.Get(ctx, "a")
	if err != nil || !ok || string(b) != "1" {
		t.Fatalf("get: %q %v %v", b, ok, err)
	}
	if err := r.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := r.Get(ctx, "a"); ok {
		t.Fatal("expected miss after delete")
	}
}
