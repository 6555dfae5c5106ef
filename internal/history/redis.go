package history

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps each entry under its own key and orders them with a sorted set
// scored by timestamp.
type RedisRepository struct {
	client  *redis.Client
	url     string
	prefix  string
	once    sync.Once
	initErr error
}

func NewRedisRepository(connectionString string) *RedisRepository {
	return &RedisRepository{url: connectionString, prefix: "loadtest:history:"}
}

func (r *RedisRepository) connect() error {
	r.once.Do(func() {
		opt, err := redis.ParseURL(r.url)
		if err != nil {
			r.initErr = err
			return
		}
		r.client = redis.NewClient(opt)
	})
	return r.initErr
}

func (r *RedisRepository) key(id string) string {
	return r.prefix + id
}

func (r *RedisRepository) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisRepository) Insert(ctx context.Context, e *Entry) error {
	if err := r.connect(); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(e.ID), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(e.Timestamp.UnixNano()), Member: e.ID})
		return nil
	})
	return redisError(err)
}

func (r *RedisRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(ids))
	if len(ids) == 0 {
		return entries, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		e, err := decodeEntry([]byte(s))
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*Entry, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}

	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}

func (r *RedisRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.connect(); err != nil {
		return false, err
	}

	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, r.key(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted.Val() > 0, nil
}

func (r *RedisRepository) DeleteAll(ctx context.Context) error {
	if err := r.connect(); err != nil {
		return err
	}

	ids, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	return r.remove(ctx, ids, true)
}

func (r *RedisRepository) Trim(ctx context.Context, keep int) error {
	if err := r.connect(); err != nil {
		return err
	}

	ids, err := r.client.ZRevRange(ctx, r.indexKey(), int64(max(keep, 0)), -1).Result()
	if err != nil {
		return err
	}
	return r.remove(ctx, ids, false)
}

func (r *RedisRepository) remove(ctx context.Context, ids []string, dropIndex bool) error {
	if len(ids) == 0 && !dropIndex {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			keys := make([]string, len(ids))
			members := make([]any, len(ids))
			for i, id := range ids {
				keys[i] = r.key(id)
				members[i] = id
			}
			pipe.Del(ctx, keys...)
			if !dropIndex {
				pipe.ZRem(ctx, r.indexKey(), members...)
			}
		}
		if dropIndex {
			pipe.Del(ctx, r.indexKey())
		}
		return nil
	})
	return err
}

func (r *RedisRepository) HealthCheck(ctx context.Context) error {
	if err := r.connect(); err != nil {
		return err
	}
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Disconnect(context.Context) error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// redisError maps maxmemory rejections onto ErrQuotaExceeded.
func redisError(err error) error {
	if err != nil && strings.HasPrefix(err.Error(), "OOM ") {
		return errors.Join(ErrQuotaExceeded, err)
	}
	return err
}
