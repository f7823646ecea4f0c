package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/soaringjerry/truthpref/internal/services"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the key, e.g. per participant: "truthpref:P123:".
	Prefix  string
	Timeout time.Duration
}

// RedisStorage keeps the attempt under a single Redis string key.
type RedisStorage struct {
	rdb     *goredis.Client
	key     string
	timeout time.Duration
}

func NewRedisStorage(opts RedisOptions) (*RedisStorage, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, errors.New("redis storage: missing address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStorage(rdb, opts.Prefix, opts.Timeout), nil
}

func newRedisStorage(rdb *goredis.Client, prefix string, timeout time.Duration) *RedisStorage {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RedisStorage{rdb: rdb, key: prefix + services.StorageKey, timeout: timeout}
}

func (r *RedisStorage) Key() string { return r.key }

func (r *RedisStorage) Load() ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	b, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisStorage) Save(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.rdb.Set(ctx, r.key, data, 0).Err()
}

func (r *RedisStorage) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.rdb.Del(ctx, r.key).Err()
}

func (r *RedisStorage) Close() error {
	return r.rdb.Close()
}
