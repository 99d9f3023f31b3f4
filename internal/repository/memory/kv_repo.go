// Package memory contains an in-process implementation of repository interfaces.
package memory

import (
	"context"
	"sync"

	"github.com/and161185/pill-monitor/internal/errs"
)

// KVRepo keeps documents in a map. Values are copied on the way in and out.
type KVRepo struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKVRepo constructs an empty store.
func NewKVRepo() *KVRepo { return &KVRepo{data: make(map[string][]byte)} }

// Load returns a copy of the stored value.
func (r *KVRepo) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save stores a copy of value.
func (r *KVRepo) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.data[key] = append([]byte(nil), value...)
	r.mu.Unlock()
	return nil
}

// SaveAll stores copies of every document under one lock.
func (r *KVRepo) SaveAll(ctx context.Context, docs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range docs {
		r.data[k] = append([]byte(nil), v...)
	}
	return nil
}
