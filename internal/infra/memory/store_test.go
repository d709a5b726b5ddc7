package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trivia-live-service/internal/app"
)

func TestStoreCreateIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Create(ctx, "answers", "p1", []byte(`{"option":1}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.Create(ctx, "answers", "p1", []byte(`{"option":2}`))
	if !errors.Is(err, app.ErrDocumentExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	doc, err := store.Get(ctx, "answers", "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(doc) != `{"option":1}` {
		t.Fatalf("first answer overwritten: %s", doc)
	}
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Put(ctx, "counters", "c", []byte{0})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "counters", "c", func(cur []byte) ([]byte, error) {
				return []byte{cur[0] + 1}, nil
			})
		}()
	}
	wg.Wait()

	doc, _ := store.Get(ctx, "counters", "c")
	if doc[0] != 50 {
		t.Fatalf("expected 50 increments, got %d", doc[0])
	}
}

func TestStoreUpdateAbortLeavesDocument(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Put(ctx, "games", "g1", []byte("v1"))

	veto := errors.New("veto")
	if err := store.Update(ctx, "games", "g1", func([]byte) ([]byte, error) { return nil, veto }); !errors.Is(err, veto) {
		t.Fatalf("expected veto, got %v", err)
	}
	doc, _ := store.Get(ctx, "games", "g1")
	if string(doc) != "v1" {
		t.Fatalf("document changed: %s", doc)
	}
	if err := store.Update(ctx, "games", "missing", func(b []byte) ([]byte, error) { return b, nil }); !errors.Is(err, app.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreQueryAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Put(ctx, "players", "a", []byte("1"))
	_ = store.Put(ctx, "players", "b", []byte("2"))
	_ = store.Put(ctx, "other", "c", []byte("3"))

	all, _ := store.Query(ctx, "players", nil)
	if len(all) != 2 {
		t.Fatalf("expected 2 players, got %d", len(all))
	}
	some, _ := store.Query(ctx, "players", func(_ string, doc []byte) bool { return string(doc) == "2" })
	if len(some) != 1 || string(some["b"]) != "2" {
		t.Fatalf("unexpected filter result %v", some)
	}

	_ = store.Delete(ctx, "players", "a")
	if _, err := store.Get(ctx, "players", "a"); !errors.Is(err, app.ErrDocumentNotFound) {
		t.Fatalf("expected deleted, got %v", err)
	}
}

func TestStoreSubscribeSnapshotThenChanges(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Put(ctx, "games", "g1", []byte("v1"))

	ch, cancel, err := store.Subscribe(ctx, "games", "g1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if c := <-ch; string(c.Doc) != "v1" {
		t.Fatalf("expected initial snapshot, got %s", c.Doc)
	}

	_ = store.Put(ctx, "games", "g2", []byte("other"))
	_ = store.Put(ctx, "games", "g1", []byte("v2"))

	select {
	case c := <-ch:
		if c.Key != "g1" || string(c.Doc) != "v2" {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatalf("no change delivered")
	}
}

func TestStoreSlowSubscriberKeepsLatest(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	ch, cancel, _ := store.Subscribe(ctx, "games", "g1")
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		_ = store.Put(ctx, "games", "g1", []byte{byte(i)})
	}

	var last app.Change
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Doc[0] != byte(subscriberBuffer*3-1) {
		t.Fatalf("expected latest value, got %d", last.Doc[0])
	}
}

func TestStoreSubscribeEndsWithContext(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	store := NewStore()

	ch, cancel, _ := store.Subscribe(ctx, "games", "")
	defer cancel()
	cancelCtx()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed")
	}
}
