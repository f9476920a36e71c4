package voucher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisSubStore(t *testing.T) (*RedisSubStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSubStore(client, 10*time.Minute), mr
}

func TestRedisSubStoreRoundTrip(t *testing.T) {
	store, _ := newRedisSubStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrSubSessionNotFound) {
		t.Fatalf("expected ErrSubSessionNotFound, got %v", err)
	}

	s := NewSubSession("u1", KindShare, "verify_holder_otp", time.Now())
	s.HolderOTP = "123456"
	s.HolderAttempts = 1
	s.Choices = []Voucher{{Code: "DHVAAAA2345", Amount: 1000}}
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HolderOTP != "123456" || got.HolderAttempts != 1 || len(got.Choices) != 1 {
		t.Errorf("session = %+v", got)
	}

	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrSubSessionNotFound) {
		t.Errorf("deleted session still readable: %v", err)
	}
}

func TestRedisSubStoreWindowRunsFromStart(t *testing.T) {
	store, mr := newRedisSubStore(t)
	ctx := context.Background()

	start := time.Now()
	s := NewSubSession("u1", KindGenerate, "contact_type", start)
	if err := store.Put(ctx, s); err != nil {
		t.Fatal(err)
	}

	// A Put mid-flow carries the remaining window, not a fresh one.
	store.now = func() time.Time { return start.Add(6 * time.Minute) }
	s.Step = "amount"
	if err := store.Put(ctx, s); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL(subKeyPrefix + "u1"); ttl > 4*time.Minute {
		t.Errorf("TTL refreshed to %v; window must run from the flow start", ttl)
	}

	store.now = func() time.Time { return start.Add(11 * time.Minute) }
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// The stale record was removed on read.
	if mr.Exists(subKeyPrefix + "u1") {
		t.Error("lapsed record not evicted")
	}
}
