package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"trivia-live-service/internal/app"
)

const (
	subscriberBuffer = 8
	maxTxRetries     = 32
)

// Store is a Redis-backed app.DocumentStore shared by every instance.
//
// Layout, for collection c and key k:
//
//	{prefix}:doc:{c}|{k}    document body (string)
//	{prefix}:idx:{c}        set of keys present in c
//	{prefix}:changes:{c}    pub/sub channel announcing writes to c
//
// Conditional writes use WATCH/MULTI on the document key, so concurrent
// writers of different documents never conflict.
type Store struct {
	client *redis.Client
	prefix string
	log    logrus.FieldLogger
}

type notification struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
}

func NewStore(client *redis.Client, prefix string, log logrus.FieldLogger) *Store {
	if prefix == "" {
		prefix = "trivia"
	}
	return &Store{client: client, prefix: prefix, log: log}
}

func (s *Store) Get(ctx context.Context, collection, key string) ([]byte, error) {
	doc, err := s.client.Get(ctx, s.docKey(collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, app.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func (s *Store) Put(ctx context.Context, collection, key string, doc []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, collection, key, doc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, collection, key string, doc []byte) error {
	docKey := s.docKey(collection, key)
	return s.retryTx(ctx, docKey, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, docKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return app.ErrDocumentExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, collection, key, doc)
			return nil
		})
		return err
	})
}

func (s *Store) Update(ctx context.Context, collection, key string, fn func(current []byte) ([]byte, error)) error {
	docKey := s.docKey(collection, key)
	return s.retryTx(ctx, docKey, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, docKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return app.ErrDocumentNotFound
		}
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, collection, key, next)
			return nil
		})
		return err
	})
}

func (s *Store) Delete(ctx context.Context, collection, key string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(collection, key))
		pipe.SRem(ctx, s.indexKey(collection), key)
		s.publish(ctx, pipe, collection, notification{Key: key, Deleted: true})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, match func(key string, doc []byte) bool) (map[string][]byte, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", collection, err)
	}
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	docKeys := make([]string, len(keys))
	for i, k := range keys {
		docKeys[i] = s.docKey(collection, k)
	}
	values, err := s.client.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query %s: %w", collection, err)
	}
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		doc := []byte(str)
		if match == nil || match(keys[i], doc) {
			out[keys[i]] = doc
		}
	}
	return out, nil
}

// Subscribe listens on the collection channel before reading the current
// documents, so no write between the two is missed. Notifications carry
// only the key; the body is re-read so a subscriber always gets the newest
// version.
func (s *Store) Subscribe(ctx context.Context, collection, key string) (<-chan app.Change, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	ps := s.client.Subscribe(ctx, s.channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		stop()
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", collection, err)
	}

	var initial []app.Change
	if key != "" {
		doc, err := s.Get(ctx, collection, key)
		switch {
		case err == nil:
			initial = append(initial, app.Change{Collection: collection, Key: key, Doc: doc})
		case !errors.Is(err, app.ErrDocumentNotFound):
			stop()
			_ = ps.Close()
			return nil, nil, err
		}
	} else {
		docs, err := s.Query(ctx, collection, nil)
		if err != nil {
			stop()
			_ = ps.Close()
			return nil, nil, err
		}
		for k, doc := range docs {
			initial = append(initial, app.Change{Collection: collection, Key: k, Doc: doc})
		}
	}

	size := subscriberBuffer
	if len(initial) > size {
		size = len(initial)
	}
	out := make(chan app.Change, size)
	for _, c := range initial {
		out <- c
	}

	log := s.log.WithField("collection", collection)
	messages := ps.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var n notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					log.WithError(err).Warn("dropping malformed change notification")
					continue
				}
				if key != "" && n.Key != key {
					continue
				}
				change := app.Change{Collection: collection, Key: n.Key, Deleted: n.Deleted}
				if !n.Deleted {
					doc, err := s.Get(ctx, collection, n.Key)
					switch {
					case errors.Is(err, app.ErrDocumentNotFound):
						change.Deleted = true
					case err != nil:
						if ctx.Err() != nil {
							return
						}
						log.WithError(err).Warn("change refresh failed")
						continue
					default:
						change.Doc = doc
					}
				}
				deliver(out, change)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

// deliver never blocks: when the buffer is full the oldest change is dropped.
func deliver(out chan app.Change, c app.Change) {
	select {
	case out <- c:
	default:
		select {
		case <-out:
		default:
		}
		out <- c
	}
}

func (s *Store) write(ctx context.Context, pipe redis.Pipeliner, collection, key string, doc []byte) {
	pipe.Set(ctx, s.docKey(collection, key), doc, 0)
	pipe.SAdd(ctx, s.indexKey(collection), key)
	s.publish(ctx, pipe, collection, notification{Key: key})
}

func (s *Store) publish(ctx context.Context, pipe redis.Pipeliner, collection string, n notification) {
	payload, _ := json.Marshal(n)
	pipe.Publish(ctx, s.channel(collection), payload)
}

// retryTx runs fn under WATCH on key, retrying when another writer got in first.
func (s *Store) retryTx(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %s: %w", key, redis.TxFailedErr)
}

func (s *Store) docKey(collection, key string) string {
	return s.prefix + ":doc:" + collection + "|" + key
}

func (s *Store) indexKey(collection string) string {
	return s.prefix + ":idx:" + collection
}

func (s *Store) channel(collection string) string {
	return s.prefix + ":changes:" + collection
}
