package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestStore creates a token store against a local Redis, skipping the
// test when none is running.
func setupTestStore(t *testing.T) (*TokenStore, *redis.Client) {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return NewTokenStore(client), client
}

func testEntry(ttl time.Duration) *TokenEntry {
	now := time.Now()
	return &TokenEntry{
		AccessToken: "stored-token",
		InstanceURL: "https://myorg.example.com",
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestTokenStore_SetAndGet(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	entry := testEntry(time.Hour)
	if err := store.Set(ctx, "user@login.example.com", entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "user@login.example.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got.AccessToken != entry.AccessToken {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, entry.AccessToken)
	}
	if got.InstanceURL != entry.InstanceURL {
		t.Errorf("InstanceURL = %q, want %q", got.InstanceURL, entry.InstanceURL)
	}
}

func TestTokenStore_GetMiss(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.Get(context.Background(), "nobody@login.example.com")
	if err != ErrTokenMiss {
		t.Errorf("Get = %v, want ErrTokenMiss", err)
	}
}

func TestTokenStore_ExpiredEntryIsMiss(t *testing.T) {
	store, client := setupTestStore(t)
	ctx := context.Background()

	// Write an already-expired entry directly; Set refuses them.
	data := `{"access_token":"stale","instance_url":"https://x","issued_at":"2020-01-01T00:00:00Z","expires_at":"2020-01-01T02:00:00Z"}`
	if err := client.Set(ctx, tokenKeyPrefix+"user@login.example.com", data, 0).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}

	_, err := store.Get(ctx, "user@login.example.com")
	if err != ErrTokenMiss {
		t.Errorf("Get = %v, want ErrTokenMiss for expired entry", err)
	}
}

func TestTokenStore_SetSkipsExpired(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "user@login.example.com", testEntry(-time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := store.Get(ctx, "user@login.example.com"); err != ErrTokenMiss {
		t.Errorf("Get = %v, want ErrTokenMiss (expired entries are not stored)", err)
	}
}

func TestTokenStore_Delete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "user@login.example.com", testEntry(time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Delete(ctx, "user@login.example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, "user@login.example.com"); err != ErrTokenMiss {
		t.Errorf("Get = %v, want ErrTokenMiss after Delete", err)
	}
}

func TestTokenEntry_TTL(t *testing.T) {
	entry := testEntry(time.Hour)
	ttl := entry.TTL()
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %v, want (0, 1h]", ttl)
	}

	if got := testEntry(-time.Minute).TTL(); got != 0 {
		t.Errorf("TTL of expired entry = %v, want 0", got)
	}
}
