package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, exists := f.values[key]
	if !exists {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeRedisStore) LockKey(name string) string { return "lock:" + name }

func TestRedisLockMutualExclusion(t *testing.T) {
	store := newFakeRedisStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "lock:sweep", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, err := NewRedisLock(store, "lock:sweep", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatal("second instance acquired a held lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseOnlyOwnValue(t *testing.T) {
	store := newFakeRedisStore()
	ctx := context.Background()

	lock, err := NewRedisLock(store, "lock:sweep", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// Another instance took over after expiry.
	store.mu.Lock()
	store.values["lock:sweep"] = "someone-else"
	store.mu.Unlock()

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	store.mu.Lock()
	value := store.values["lock:sweep"]
	store.mu.Unlock()
	if value != "someone-else" {
		t.Fatal("release deleted a lock held by another owner")
	}
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	store := newFakeRedisStore()
	lock, err := NewRedisLock(store, "lock:sweep", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestRedisLockProviderBuildsPerJobLocks(t *testing.T) {
	store := newFakeRedisStore()
	provider := NewRedisLockProvider(store, time.Minute)

	sweep := provider.For("payment-sweep")
	expiry := provider.For("payment-expiry")
	ctx := context.Background()

	if ok, _ := sweep.Acquire(ctx); !ok {
		t.Fatal("sweep lock not acquired")
	}
	if ok, _ := expiry.Acquire(ctx); !ok {
		t.Fatal("expiry lock blocked by unrelated job")
	}
}
