package persist

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTimeout is the per-operation timeout for the Redis blob store.
// Prevents indefinite hangs on slow or unresponsive storage.
const DefaultRedisTimeout = 5 * time.Second

type redisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

var _ BlobStore = (*redisStore)(nil)

// NewRedis returns a BlobStore backed by Redis. All keys are stored under
// the given prefix so multiple caches can share one Redis instance. The
// caller owns the redis.Client lifecycle — Close is a no-op on the client.
func NewRedis(client *redis.Client, prefix string) BlobStore {
	return &redisStore{
		client:  client,
		prefix:  prefix,
		timeout: DefaultRedisTimeout,
	}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *redisStore) prefixKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *redisStore) stripPrefix(key string) string {
	if s.prefix == "" {
		return key
	}
	return key[len(s.prefix)+1:]
}

func (s *redisStore) ReadAll(ctx context.Context) (map[string][]byte, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	out := make(map[string][]byte)
	iter := s.client.Scan(qctx, 0, s.prefixKey("*"), 0).Iterator()
	for iter.Next(qctx) {
		full := iter.Val()
		data, err := s.client.Get(qctx, full).Bytes()
		if err == redis.Nil {
			// expired or deleted between scan and get
			continue
		}
		if err != nil {
			return nil, err
		}
		out[s.stripPrefix(full)] = data
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *redisStore) Write(ctx context.Context, key string, blob []byte) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Set(qctx, s.prefixKey(key), blob, 0).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Del(qctx, s.prefixKey(key)).Err()
}

func (s *redisStore) Close() error {
	return nil
}
