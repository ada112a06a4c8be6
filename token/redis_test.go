package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewRedisStore(client, "ac", time.Hour), mr
}

func newRecord(userID, family string) (raw string, rec *Record) {
	raw = uuid.NewString() + uuid.NewString()
	return raw, &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: Hash(raw),
		Family:    family,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
		UserAgent: "test-agent",
		IP:        "203.0.113.7",
	}
}

func TestSaveAndGet(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, rec := newRecord("user-1", "fam-1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Get(ctx, rec.TokenHash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserID != "user-1" || got.Family != "fam-1" || got.Revoked {
		t.Fatalf("record = %+v", got)
	}
	if got.UserAgent != "test-agent" || got.IP != "203.0.113.7" {
		t.Fatalf("context fields lost: %+v", got)
	}

	if _, err := store.Get(ctx, Hash("never-issued")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing record: got %v, want ErrNotFound", err)
	}
}

func TestRotateHappyPath(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, first := newRecord("user-1", "fam-1")
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, next := newRecord("", "")
	consumed, err := store.Rotate(ctx, first.TokenHash, next)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if consumed.UserID != "user-1" || consumed.Family != "fam-1" {
		t.Fatalf("consumed = %+v", consumed)
	}
	if next.UserID != "user-1" || next.Family != "fam-1" {
		t.Fatalf("successor not filled from consumed record: %+v", next)
	}

	// The old record is now revoked, the successor live, same family.
	old, err := store.Get(ctx, first.TokenHash)
	if err != nil {
		t.Fatalf("Get old: %v", err)
	}
	if !old.Revoked {
		t.Fatal("consumed record not marked revoked")
	}
	fresh, err := store.Get(ctx, next.TokenHash)
	if err != nil {
		t.Fatalf("Get next: %v", err)
	}
	if fresh.Revoked || fresh.Family != "fam-1" {
		t.Fatalf("successor = %+v", fresh)
	}
}

func TestRotateUnknownAndExpired(t *testing.T) {
	store, mr := testStore(t)
	ctx := context.Background()

	_, next := newRecord("", "")
	if _, err := store.Rotate(ctx, Hash("never-issued"), next); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown token: got %v, want ErrNotFound", err)
	}

	_, stale := newRecord("user-1", "fam-1")
	if err := store.Save(ctx, stale); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(2 * time.Hour) // past expiry, within retention? expiry+retention both pass
	_, next2 := newRecord("", "")
	_, err := store.Rotate(ctx, stale.TokenHash, next2)
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrExpired) {
		t.Fatalf("expired token: got %v, want ErrExpired or ErrNotFound", err)
	}
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, first := newRecord("user-1", "fam-1")
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, second := newRecord("", "")
	if _, err := store.Rotate(ctx, first.TokenHash, second); err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	_, third := newRecord("", "")
	if _, err := store.Rotate(ctx, second.TokenHash, third); err != nil {
		t.Fatalf("second rotation: %v", err)
	}

	// Replay the already-consumed first token: theft signal.
	_, replay := newRecord("", "")
	consumed, err := store.Rotate(ctx, first.TokenHash, replay)
	if !errors.Is(err, ErrReuse) {
		t.Fatalf("replay: got %v, want ErrReuse", err)
	}
	if consumed == nil || consumed.UserID != "user-1" || consumed.Family != "fam-1" {
		t.Fatalf("reuse context = %+v", consumed)
	}

	// Every descendant, including the newest live token, must now be dead.
	for _, hash := range []string{second.TokenHash, third.TokenHash} {
		rec, err := store.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get %s: %v", hash[:8], err)
		}
		if !rec.Revoked {
			t.Fatalf("family member %s still live after reuse", hash[:8])
		}
	}
	// And the replayed successor record must not have been created.
	if _, err := store.Get(ctx, replay.TokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("replay minted a successor: %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, first := newRecord("user-1", "fam-1")
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, next := newRecord("", "")
			_, errs[i] = store.Rotate(ctx, first.TokenHash, next)
		}(i)
	}
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrReuse):
			losers++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if losers != racers-1 {
		t.Fatalf("losers = %d, want %d", losers, racers-1)
	}
}

func TestRevokeFamily(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, rec := newRecord("user-1", "fam-1")
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	n, err := store.RevokeFamily(ctx, "fam-1")
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}
	// Idempotent: a second pass touches nothing.
	n, err = store.RevokeFamily(ctx, "fam-1")
	if err != nil {
		t.Fatalf("RevokeFamily: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass revoked %d, want 0", n)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	for _, fam := range []string{"fam-1", "fam-2"} {
		_, rec := newRecord("user-1", fam)
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	_, other := newRecord("user-2", "fam-3")
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := store.RevokeAllForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("RevokeAllForUser: %v", err)
	}
	if n != 2 {
		t.Fatalf("revoked %d, want 2", n)
	}
	rec, err := store.Get(ctx, other.TokenHash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Revoked {
		t.Fatal("unrelated user's token was revoked")
	}
}

func TestSweepExpired(t *testing.T) {
	_, mr := testStore(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	// Long retention so the already-expired record's key survives until
	// the sweep runs.
	store := NewRedisStore(client, "ac", 7*24*time.Hour)
	ctx := context.Background()

	_, old := newRecord("user-1", "fam-1")
	old.ExpiresAt = time.Now().Add(-48 * time.Hour)
	if err := store.Save(ctx, old); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, live := newRecord("user-1", "fam-1")
	if err := store.Save(ctx, live); err != nil {
		t.Fatalf("Save: %v", err)
	}

	n, err := store.SweepExpired(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, err := store.Get(ctx, old.TokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record survived sweep: %v", err)
	}
	if _, err := store.Get(ctx, live.TokenHash); err != nil {
		t.Fatalf("live record swept: %v", err)
	}
}

func TestSweepPrunesUserIndex(t *testing.T) {
	_, mr := testStore(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "ac", 7*24*time.Hour)
	ctx := context.Background()

	// One family entirely dead, one still carrying a live token.
	_, dead := newRecord("user-1", "fam-dead")
	dead.ExpiresAt = time.Now().Add(-48 * time.Hour)
	if err := store.Save(ctx, dead); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, live := newRecord("user-1", "fam-live")
	if err := store.Save(ctx, live); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := store.SweepExpired(ctx, 24*time.Hour); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}

	families, err := client.SMembers(ctx, store.userKey("user-1")).Result()
	if err != nil {
		t.Fatalf("SMembers: %v", err)
	}
	if len(families) != 1 || families[0] != "fam-live" {
		t.Fatalf("user index = %v, want only fam-live", families)
	}
}
