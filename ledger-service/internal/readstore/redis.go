package readstore

import (
	"context"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	sharedredis "github.com/eaglebank/ledger/shared/redis"
)

// RedisStore keeps each row as a JSON value under "<partition>:view:<id>".
// Ids are tracked in the "<partition>:index" set so the partition can be
// scanned, and in "<partition>:by-owner:<owner>" when the store has an owner.
type RedisStore[T any] struct {
	client    *goredis.Client
	cache     *sharedredis.ViewCache[T]
	partition string
	owner     Owner[T]
}

// NewRedisStore builds a store over partition. owner may be nil when rows
// are never listed by owner.
func NewRedisStore[T any](client *goredis.Client, partition string, owner Owner[T]) *RedisStore[T] {
	return &RedisStore[T]{
		client:    client,
		cache:     sharedredis.NewViewCache[T](client, 0),
		partition: partition,
		owner:     owner,
	}
}

func (s *RedisStore[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	row, ok, err := s.cache.Get(ctx, viewKey(s.partition, id))
	if err != nil || !ok {
		return zero, false, err
	}
	return *row, true, nil
}

func (s *RedisStore[T]) Upsert(ctx context.Context, id string, row T) error {
	if err := s.cache.Set(ctx, viewKey(s.partition, id), &row); err != nil {
		return err
	}
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, indexKey(s.partition), id)
		if s.owner != nil {
			pipe.SAdd(ctx, ownerKey(s.partition, s.owner(row)), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index %s row %s: %w", s.partition, id, err)
	}
	return nil
}

func (s *RedisStore[T]) Query(ctx context.Context, filter func(T) bool) ([]T, error) {
	ids, err := s.client.SMembers(ctx, indexKey(s.partition)).Result()
	if err != nil {
		return nil, fmt.Errorf("scan %s index: %w", s.partition, err)
	}
	rows, err := s.load(ctx, ids)
	if err != nil || filter == nil {
		return rows, err
	}
	out := rows[:0]
	for _, row := range rows {
		if filter(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *RedisStore[T]) ListBy(ctx context.Context, owner string) ([]T, error) {
	if s.owner == nil {
		return nil, fmt.Errorf("%s: %w", s.partition, errNoOwnerIndex)
	}
	ids, err := s.client.SMembers(ctx, ownerKey(s.partition, owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s of %s: %w", s.partition, owner, err)
	}
	return s.load(ctx, ids)
}

func (s *RedisStore[T]) load(ctx context.Context, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = viewKey(s.partition, id)
	}
	return s.cache.GetMany(ctx, keys)
}
