// Package presence tracks which authors currently have an edit session
// open on a product.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 2 * time.Minute

// RedisStore keeps one sorted set per product. Members are author ids
// scored by the unix-millisecond time their presence lapses.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "presence:product:",
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *RedisStore) key(productID string) string {
	return s.prefix + productID
}

// Touch records or refreshes authorID as editing productID.
func (s *RedisStore) Touch(ctx context.Context, productID, authorID string) error {
	key := s.key(productID)
	expires := s.now().Add(s.ttl)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(expires.UnixMilli()), Member: authorID})
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch presence: %w", err)
	}
	return nil
}

func (s *RedisStore) Leave(ctx context.Context, productID, authorID string) error {
	if err := s.client.ZRem(ctx, s.key(productID), authorID).Err(); err != nil {
		return fmt.Errorf("leave presence: %w", err)
	}
	return nil
}

// Editors lists authors whose presence has not lapsed, pruning the rest.
func (s *RedisStore) Editors(ctx context.Context, productID string) ([]string, error) {
	key := s.key(productID)
	cutoff := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff).Err(); err != nil {
		return nil, fmt.Errorf("prune presence: %w", err)
	}
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: cutoff, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	return members, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
