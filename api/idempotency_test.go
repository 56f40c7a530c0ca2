package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T) (*RedisDeduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, time.Hour), mr
}

func TestRedisDeduperAdd(t *testing.T) {
	deduper, _ := newTestDeduper(t)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "key-1")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !added {
		t.Fatal("expected first add to succeed")
	}

	added, err = deduper.Add(ctx, "user", "key-1")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if added {
		t.Fatal("expected duplicate add to be rejected")
	}
}

func TestRedisDeduperScopedByUser(t *testing.T) {
	deduper, _ := newTestDeduper(t)
	ctx := context.Background()

	if added, _ := deduper.Add(ctx, "alice", "key-1"); !added {
		t.Fatal("expected add for alice")
	}
	if added, _ := deduper.Add(ctx, "bob", "key-1"); !added {
		t.Fatal("expected same key to be independent per user")
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	deduper, _ := newTestDeduper(t)
	ctx := context.Background()

	if added, _ := deduper.Add(ctx, "user", "key-1"); !added {
		t.Fatal("expected first add to succeed")
	}
	if err := deduper.Remove(ctx, "user", "key-1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if added, _ := deduper.Add(ctx, "user", "key-1"); !added {
		t.Fatal("expected add to succeed after removal")
	}
}

func TestRedisDeduperKeysExpire(t *testing.T) {
	deduper, mr := newTestDeduper(t)
	ctx := context.Background()

	if added, _ := deduper.Add(ctx, "user", "key-1"); !added {
		t.Fatal("expected first add to succeed")
	}
	mr.FastForward(2 * time.Hour)
	if added, _ := deduper.Add(ctx, "user", "key-1"); !added {
		t.Fatal("expected add to succeed after TTL expiry")
	}
}
