package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore backs the persisted Device/Gateway/Application records with
// Redis, for deployments where the gateway runs as more than one process
// and needs a shared view (spec.md §3 "persisted by the control plane").
// Each record is a JSON blob under a namespaced key
// (wasmbed:<namespace>:<kind>:<name>), matching the teacher's
// RedisHubStore key-prefixing convention.
type RedisStore struct {
	client    *redis.Client
	namespace string
	lockTTL   time.Duration
}

// NewRedisStore wraps an already-configured go-redis client.
func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "default"
	}
	return &RedisStore{client: client, namespace: namespace, lockTTL: 5 * time.Second}
}

func (r *RedisStore) key(kind, name string) string {
	return fmt.Sprintf("wasmbed:%s:%s:%s", r.namespace, kind, name)
}

func (r *RedisStore) indexKey(kind string) string {
	return fmt.Sprintf("wasmbed:%s:%s:_index", r.namespace, kind)
}

func (r *RedisStore) Put(ctx context.Context, kind, name string, value interface{}) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(kind, name), data, 0)
	pipe.SAdd(ctx, r.indexKey(kind), name)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: redis put %s/%s: %w", kind, name, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, kind, name string, out interface{}) (bool, error) {
	data, err := r.client.Get(ctx, r.key(kind, name)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: redis get %s/%s: %w", kind, name, err)
	}
	if err := decode(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisStore) List(ctx context.Context, kind string) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.indexKey(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis list %s: %w", kind, err)
	}
	return names, nil
}

func (r *RedisStore) Delete(ctx context.Context, kind, name string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(kind, name))
	pipe.SRem(ctx, r.indexKey(kind), name)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("store: redis delete %s/%s: %w", kind, name, err)
	}
	return nil
}

// Update takes a short-lived SETNX sentinel lock on the key before doing its
// read-modify-write, so two gateway processes racing a status patch on the
// same record don't clobber each other. While another update holds the lock
// it retries every 10ms until ctx is done. The lock is released (or left to
// expire at lockTTL) once the write completes.
func (r *RedisStore) Update(ctx context.Context, kind, name string, out interface{}, mutate func() error) error {
	lockKey := r.key(kind, name) + ":lock"
	token := uuid.NewString()

	for {
		acquired, err := r.client.SetNX(ctx, lockKey, token, r.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("store: redis lock %s/%s: %w", kind, name, err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("store: %s/%s is locked by a concurrent update: %w", kind, name, ctx.Err())
		case <-time.After(10 * time.Millisecond):
		}
	}
	defer r.client.Del(context.Background(), lockKey)

	found, err := r.Get(ctx, kind, name, out)
	if err != nil {
		return err
	}
	_ = found // zero-valued out is the correct starting point when absent

	if err := mutate(); err != nil {
		return err
	}
	return r.Put(ctx, kind, name, out)
}
