package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"canteen/server/internal/models"
)

const (
	defaultKeyPrefix = "canteen:"
	changesChannel   = "changes"
)

// RedisStore keeps each document as a JSON string under <prefix><path> and
// announces writes on the <prefix>changes Pub/Sub channel.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	timeout   time.Duration
}

// NewRedisStore wraps an already connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		timeout:   3 * time.Second,
	}
}

// WithKeyPrefix namespaces every key, e.g. per test.
func (r *RedisStore) WithKeyPrefix(prefix string) *RedisStore {
	r.keyPrefix = prefix
	return r
}

func (r *RedisStore) key(path string) string { return r.keyPrefix + path }

func (r *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func unavailable(op, path string, err error) error {
	return &models.StoreUnavailableError{Op: op + " " + path, Err: errors.Wrap(err, "redis")}
}

func (r *RedisStore) Get(ctx context.Context, path string, dest any) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(path)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("get", path, err)
	}
	return errors.Wrapf(json.Unmarshal(data, dest), "decode %s", path)
}

func (r *RedisStore) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	if err := r.client.Set(ctx, r.key(path), data, 0).Err(); err != nil {
		return unavailable("set", path, err)
	}
	r.announce(ctx, path, OpSet)
	return nil
}

// Update merges partial into the stored object with a plain read-modify-write.
// Concurrent writers race; the last one wins.
func (r *RedisStore) Update(ctx context.Context, path string, partial map[string]any) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(path)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("update", path, err)
	}
	merged, err := mergeJSON(data, partial)
	if err != nil {
		return errors.Wrapf(err, "merge %s", path)
	}
	if err := r.client.Set(ctx, r.key(path), merged, 0).Err(); err != nil {
		return unavailable("update", path, err)
	}
	r.announce(ctx, path, OpUpdate)
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, path string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	n, err := r.client.Del(ctx, r.key(path)).Result()
	if err != nil {
		return unavailable("remove", path, err)
	}
	if n > 0 {
		r.announce(ctx, path, OpRemove)
	}
	return nil
}

func (r *RedisStore) Take(ctx context.Context, path string, dest any) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	data, err := r.client.GetDel(ctx, r.key(path)).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("take", path, err)
	}
	r.announce(ctx, path, OpRemove)
	return errors.Wrapf(json.Unmarshal(data, dest), "decode %s", path)
}

func (r *RedisStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, r.key(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list", prefix, err)
	}

	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("list", prefix, err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// removed between SCAN and MGET
			continue
		}
		out[strings.TrimPrefix(keys[i], r.keyPrefix)] = []byte(s)
	}
	return out, nil
}

func (r *RedisStore) Subscribe(ctx context.Context, prefix string) (<-chan Change, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.key(changesChannel))
	// Receive waits for the subscription confirmation so no change is missed
	// between Subscribe returning and the first read.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, unavailable("subscribe", prefix, err)
	}

	out := make(chan Change, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					continue
				}
				if !matches(prefix, c.Path) {
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// Ping is used by health checks.
func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (r *RedisStore) announce(ctx context.Context, path, op string) {
	payload, _ := json.Marshal(Change{Path: path, Op: op, At: time.Now().UTC()})
	// best effort; the write itself already succeeded
	_ = r.client.Publish(ctx, r.key(changesChannel), payload).Err()
}
