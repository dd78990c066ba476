package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/prodsearch/internal/db"
)

// Counter reads an integer counter.
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).AsInt64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, db.ErrKeyNotFound
		}
		return 0, &db.Error{Op: db.OpCounter, Key: key, Err: err}
	}
	return val, nil
}

// Add sends INCRBY and EXPIRE NX in one round trip.
func (s *Store) Add(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	incr := s.client.B().Incrby().Key(key).Increment(delta).Build()
	if ttl < time.Second {
		val, err := s.client.Do(ctx, incr).AsInt64()
		if err != nil {
			return 0, &db.Error{Op: db.OpAdd, Key: key, Err: err}
		}
		return val, nil
	}

	expire := s.client.B().Expire().Key(key).Seconds(int64(ttl / time.Second)).Nx().Build()
	res := s.client.DoMulti(ctx, incr, expire)

	val, err := res[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpAdd, Key: key, Err: err}
	}
	if err := res[1].Error(); err != nil {
		return val, &db.Error{Op: db.OpExpire, Key: key, Err: err}
	}
	return val, nil
}
