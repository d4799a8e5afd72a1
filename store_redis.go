package memcore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

// redisEnvelope mirrors badgerEnvelope: Redis values are opaque byte
// strings, so the original key travels alongside the document.
type redisEnvelope struct {
	Key Value    `bson:"key"`
	Doc Document `bson:"doc"`
}

// RedisStore is a DocumentStore backed by Redis, adapted from the
// teacher's RedisCache (cache/redis.go). It keeps a Redis hash under
// prefix+"keys" mapping each live document's canonical key to its stored
// envelope, so Keys() doesn't need the KEYS
// command's O(n) full-keyspace scan in production deployments that share
// a Redis instance with other data.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to a Redis server at addr.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis store: %w", err)
	}
	return &RedisStore{client: client, prefix: "memcore:"}, nil
}

func (s *RedisStore) docKey(key StoreKey) string {
	return s.prefix + "doc:" + canonicalKey(key)
}

func (s *RedisStore) keySetName() string {
	return s.prefix + "keys"
}

func (s *RedisStore) Get(ctx context.Context, key StoreKey) (Document, bool, error) {
	data, err := s.client.Get(ctx, s.docKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis store get: %w", err)
	}
	var env redisEnvelope
	if err := bson.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("redis store unmarshal: %w", err)
	}
	return env.Doc, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key StoreKey, doc Document) error {
	value, err := bson.Marshal(redisEnvelope{Key: key, Doc: doc})
	if err != nil {
		return fmt.Errorf("redis store marshal: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.docKey(key), value, 0)
	pipe.HSet(ctx, s.keySetName(), canonicalKey(key), value)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis store put: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key StoreKey) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.docKey(key))
	pipe.HDel(ctx, s.keySetName(), canonicalKey(key))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis store delete: %w", err)
	}
	return nil
}

func (s *RedisStore) Keys(ctx context.Context) ([]StoreKey, error) {
	all, err := s.client.HGetAll(ctx, s.keySetName()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store keys: %w", err)
	}
	out := make([]StoreKey, 0, len(all))
	for _, raw := range all {
		var env redisEnvelope
		if err := bson.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("redis store unmarshal key: %w", err)
		}
		out = append(out, env.Key)
	}
	return out, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.keySetName()).Result()
	return int(n), err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
