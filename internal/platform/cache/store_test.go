package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStoreSetGet(t *testing.T) {
	store := NewStore(time.Minute)
	ctx := context.Background()

	store.Set(ctx, "k", 42)

	got, ok := store.Get(ctx, "k")
	if !ok || got != 42 {
		t.Fatalf("get = (%v, %t), want (42, true)", got, ok)
	}

	if _, ok := store.Get(ctx, "missing"); ok {
		t.Fatal("unexpected hit for missing key")
	}
}

func TestStoreDeletePrefix(t *testing.T) {
	store := NewStore(time.Minute)
	ctx := context.Background()

	store.Set(ctx, "squads:leaderboard:50", "a")
	store.Set(ctx, "squads:search:fc:20", "b")
	store.Set(ctx, "leaderboard:global:u1", "c")

	store.DeletePrefix(ctx, "squads:")

	if _, ok := store.Get(ctx, "squads:leaderboard:50"); ok {
		t.Fatal("squads entry survived prefix delete")
	}
	if _, ok := store.Get(ctx, "squads:search:fc:20"); ok {
		t.Fatal("squads entry survived prefix delete")
	}
	if _, ok := store.Get(ctx, "leaderboard:global:u1"); !ok {
		t.Fatal("unrelated entry was deleted")
	}
}

func TestStoreGetOrLoadCachesResult(t *testing.T) {
	store := NewStore(time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		got, err := store.GetOrLoad(ctx, "k", loader)
		if err != nil {
			t.Fatalf("get or load: %v", err)
		}
		if got != "value" {
			t.Fatalf("got %v, want value", got)
		}
	}

	if calls != 1 {
		t.Fatalf("loader ran %d times, want 1", calls)
	}
}

func TestStoreGetOrLoadDoesNotCacheErrors(t *testing.T) {
	store := NewStore(time.Minute)
	ctx := context.Background()

	boom := errors.New("boom")
	calls := 0

	_, err := store.GetOrLoad(ctx, "k", func(context.Context) (any, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	got, err := store.GetOrLoad(ctx, "k", func(context.Context) (any, error) {
		calls++
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("get or load after failure: %v", err)
	}
	if got != "recovered" || calls != 2 {
		t.Fatalf("got %v after %d calls, want recovered after 2", got, calls)
	}
}

func TestStoreGetOrLoadDeduplicatesConcurrentLoads(t *testing.T) {
	store := NewStore(time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]any, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := store.GetOrLoad(ctx, "k", loader)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = got
		}(i)
	}

	// Give the workers time to pile onto the same key, then let the
	// single in-flight load finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader ran %d times, want 1", got)
	}
	for i, r := range results {
		if r != "value" {
			t.Fatalf("worker %d got %v", i, r)
		}
	}
}

func TestStoreExpiresEntries(t *testing.T) {
	store := NewStore(10 * time.Millisecond)
	ctx := context.Background()

	store.Set(ctx, "k", "v")
	time.Sleep(20 * time.Millisecond)

	if _, ok := store.Get(ctx, "k"); ok {
		t.Fatal("entry survived past its TTL")
	}
}
