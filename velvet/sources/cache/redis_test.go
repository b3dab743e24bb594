package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestSetGetJSON(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "", "velvet:")
	defer c.Close()
	ctx := context.Background()

	if err := c.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	if !srv.Exists("velvet:k") {
		t.Fatalf("expected prefixed key in redis")
	}

	var got map[string]int
	ok, err := c.GetJSON(ctx, "k", &got)
	if err != nil || !ok {
		t.Fatalf("GetJSON: ok=%v err=%v", ok, err)
	}
	if got["a"] != 1 {
		t.Errorf("unexpected value %v", got)
	}
}

func TestGetJSONMissAndExpiry(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "", "")
	defer c.Close()
	ctx := context.Background()

	var v string
	if ok, err := c.GetJSON(ctx, "none", &v); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	if err := c.SetJSON(ctx, "short", "x", time.Second); err != nil {
		t.Fatal(err)
	}
	srv.FastForward(2 * time.Second)
	if ok, _ := c.GetJSON(ctx, "short", &v); ok {
		t.Errorf("expected key to expire")
	}
}

func TestHealth(t *testing.T) {
	srv := miniredis.RunT(t)
	c := NewRedisCache(srv.Addr(), "", "")
	defer c.Close()

	if got := c.Health(context.Background()); got != "healthy" {
		t.Errorf("expected healthy, got %s", got)
	}
	srv.Close()
	if got := c.Health(context.Background()); got != "unhealthy" {
		t.Errorf("expected unhealthy after shutdown, got %s", got)
	}
}
