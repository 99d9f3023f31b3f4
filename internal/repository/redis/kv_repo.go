// Package redis contains a Redis implementation of repository interfaces.
package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/and161185/pill-monitor/internal/errs"
)

const keyPrefix = "pillmon:"

// KVRepo stores documents as plain Redis strings without expiry.
type KVRepo struct {
	client *redis.Client
}

// NewKVRepo wraps an existing client.
func NewKVRepo(client *redis.Client) *KVRepo {
	return &KVRepo{client: client}
}

// Load returns the stored value or errs.ErrNotFound.
func (r *KVRepo) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Save overwrites the value under key.
func (r *KVRepo) Save(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, keyPrefix+key, value, 0).Err()
}

// SaveAll writes every document in one MULTI/EXEC transaction.
func (r *KVRepo) SaveAll(ctx context.Context, docs map[string][]byte) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for k, v := range docs {
			p.Set(ctx, keyPrefix+k, v, 0)
		}
		return nil
	})
	return err
}
