// Package limiter throttles clients that keep presenting bad API tokens.
package limiter

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"
)

// Limiter tracks failed authentications per client and places temporary blocks.
type Limiter interface {
	// Allow reports whether the client may try to authenticate and an optional retry-after.
	Allow(ctx context.Context, client []byte) (bool, time.Duration, error)
	// Success clears the failure counter.
	Success(ctx context.Context, client []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, client []byte) (bool, time.Duration, error)
}

// Defaults used by the server.
const (
	DefaultWindow   = 15 * time.Minute
	DefaultMaxFails = 5
	DefaultBlockFor = 15 * time.Minute
)

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

type memEntry struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is an in-process limiter with the same sliding window and lockout rules as PG.
type Memory struct {
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time

	mu      sync.Mutex
	clients map[string]*memEntry
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
		clients:  make(map[string]*memEntry),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, client []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.clients[string(client)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success implements Limiter.
func (m *Memory) Success(_ context.Context, client []byte) error {
	m.mu.Lock()
	delete(m.clients, string(client))
	m.mu.Unlock()
	return nil
}

// Failure implements Limiter.
func (m *Memory) Failure(_ context.Context, client []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.clients[string(client)]
	if !ok {
		e = &memEntry{}
		m.clients[string(client)] = e
	}
	if now.Sub(e.updatedAt) > m.window {
		e.fails = 0
	}
	e.fails++
	e.updatedAt = now
	if e.fails >= m.maxFails {
		e.blockedUntil = now.Add(m.blockFor)
		return true, m.blockFor, nil
	}
	return false, 0, nil
}
