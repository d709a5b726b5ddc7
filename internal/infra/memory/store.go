package memory

import (
	"context"
	"sync"

	"trivia-live-service/internal/app"
)

const subscriberBuffer = 8

// Store is an in-process implementation of app.DocumentStore. It backs a
// single-instance deployment and the tests.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	collection string
	key        string
	ch         chan app.Change
}

func (s *subscriber) matches(collection, key string) bool {
	return s.collection == collection && (s.key == "" || s.key == key)
}

func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
		subscribers: make(map[*subscriber]struct{}),
	}
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][key]
	if !ok {
		return nil, app.ErrDocumentNotFound
	}
	return clone(doc), nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLocked(collection, key, doc)
	return nil
}

func (s *Store) Create(ctx context.Context, collection, key string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][key]; ok {
		return app.ErrDocumentExists
	}
	s.writeLocked(collection, key, doc)
	return nil
}

func (s *Store) Update(ctx context.Context, collection, key string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.collections[collection][key]
	if !ok {
		return app.ErrDocumentNotFound
	}
	next, err := fn(clone(current))
	if err != nil {
		return err
	}
	s.writeLocked(collection, key, next)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := docs[key]; !ok {
		return nil
	}
	delete(docs, key)
	s.broadcastLocked(app.Change{Collection: collection, Key: key, Deleted: true})
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, match func(key string, doc []byte) bool) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte)
	for key, doc := range s.collections[collection] {
		if match == nil || match(key, doc) {
			out[key] = clone(doc)
		}
	}
	return out, nil
}

// Subscribe delivers the current matching documents first, then every later
// change. A slow reader loses the oldest pending change, never the newest;
// collection watchers should treat a change as a cue to re-read.
func (s *Store) Subscribe(ctx context.Context, collection, key string) (<-chan app.Change, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	initial := make([]app.Change, 0, 1)
	for k, doc := range s.collections[collection] {
		if key == "" || k == key {
			initial = append(initial, app.Change{Collection: collection, Key: k, Doc: clone(doc)})
		}
	}
	size := subscriberBuffer
	if len(initial) > size {
		size = len(initial)
	}
	sub := &subscriber{collection: collection, key: key, ch: make(chan app.Change, size)}
	for _, c := range initial {
		sub.ch <- c
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			if _, ok := s.subscribers[sub]; ok {
				delete(s.subscribers, sub)
				close(sub.ch)
			}
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return sub.ch, cancel, nil
}

func (s *Store) writeLocked(collection, key string, doc []byte) {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string][]byte)
		s.collections[collection] = docs
	}
	docs[key] = clone(doc)
	s.broadcastLocked(app.Change{Collection: collection, Key: key, Doc: clone(doc)})
}

func (s *Store) broadcastLocked(c app.Change) {
	for sub := range s.subscribers {
		if !sub.matches(c.Collection, c.Key) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- c
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
