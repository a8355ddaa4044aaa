package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dhis2-sre/im-console/internal/errdef"
	"github.com/go-redis/redis"
)

func NewRedis(host string, port int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: "",
		DB:       0,
	})

	if _, err := client.Ping().Result(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %v", err)
	}

	return client, nil
}

// NewRedisStore returns a store keeping every key under given prefix. Keys never expire.
func NewRedisStore(client *redis.Client, prefix string) *redisStore {
	return &redisStore{client: client, prefix: prefix}
}

type redisStore struct {
	client *redis.Client
	prefix string
}

func (r redisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.WithContext(ctx).Get(r.prefix + key).Result()
	if errors.Is(err, redis.Nil) {
		return "", errdef.NewNotFound("key %q doesn't exist", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %q from redis: %v", key, err)
	}
	return value, nil
}

func (r redisStore) Set(ctx context.Context, key, value string) error {
	return r.client.WithContext(ctx).Set(r.prefix+key, value, 0).Err()
}

func (r redisStore) Delete(ctx context.Context, key string) error {
	return r.client.WithContext(ctx).Del(r.prefix + key).Err()
}
