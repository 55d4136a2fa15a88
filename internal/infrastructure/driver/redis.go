package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrSkipUpdate returned by an UpdateFunc to leave the key untouched
var ErrSkipUpdate = errors.New("skip update")

// RedisClient .
type RedisClient struct {
	conn    *redis.Client
	retries int
}

var _ KeyValueDB = &RedisClient{}

// RedisConfig options for NewRedisClient
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Retries  int // optimistic transaction retries
}

// NewRedisClient create a redis client
func NewRedisClient(cfg *RedisConfig) *RedisClient {
	conn := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &RedisClient{
		conn:    conn,
		retries: retries,
	}
}

// SetEX implement KeyValueDB
func (rdb *RedisClient) SetEX(ctx context.Context, key string, value string, expiration time.Duration) error {
	return rdb.conn.Set(ctx, key, value, expiration).Err()
}

// Get implement KeyValueDB
func (rdb *RedisClient) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := rdb.conn.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Exists implement KeyValueDB
func (rdb *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := rdb.conn.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update implement KeyValueDB with WATCH/MULTI, the transaction is retried when
// the key changes between read and write
func (rdb *RedisClient) Update(ctx context.Context, key string, fn UpdateFunc) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		exists := true
		if err == redis.Nil {
			exists = false
		} else if err != nil {
			return err
		}

		next, err := fn(current, exists)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < rdb.retries; i++ {
		err := rdb.conn.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, ErrSkipUpdate) {
			return nil
		}
		return err
	}
	return ErrConflict
}

// Ping implement KeyValueDB
func (rdb *RedisClient) Ping() error {
	return rdb.conn.Ping(context.Background()).Err()
}

// Close release the underlying pool
func (rdb *RedisClient) Close() error {
	return rdb.conn.Close()
}
