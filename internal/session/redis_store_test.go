package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestSaveAndLookupProgramSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProgramSession(ctx, "sess_abc", 7, time.Hour); err != nil {
		t.Fatalf("SaveProgramSession: %v", err)
	}
	programID, err := store.LookupProgramSession(ctx, "sess_abc")
	if err != nil {
		t.Fatalf("LookupProgramSession: %v", err)
	}
	if programID != 7 {
		t.Fatalf("expected program 7, got %d", programID)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.LookupProgramSession(context.Background(), "sess_missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProgramSession(ctx, "sess_ttl", 7, time.Minute); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Minute)

	_, err := store.LookupProgramSession(ctx, "sess_ttl")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired token to be gone, got %v", err)
	}
}

func TestSaveDefaultsTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProgramSession(ctx, "sess_default", 7, 0); err != nil {
		t.Fatal(err)
	}
	ttl := mr.TTL("session:sess_default")
	if ttl <= 0 {
		t.Fatalf("expected a positive default TTL, got %v", ttl)
	}
}

func TestRevokeProgramSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveProgramSession(ctx, "sess_gone", 7, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := store.RevokeProgramSession(ctx, "sess_gone"); err != nil {
		t.Fatalf("RevokeProgramSession: %v", err)
	}
	_, err := store.LookupProgramSession(ctx, "sess_gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked token to be gone, got %v", err)
	}
}
