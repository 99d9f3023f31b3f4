// Package repository declares persistence contracts used by the inventory store and services.
package repository

import "context"

// Keys under which the application state is persisted.
const (
	KeyPillData             = "pill-data"
	KeyPillHistory          = "pill-history"
	KeyUserProfile          = "user-profile"
	KeyNotificationSettings = "notification-settings"
	KeyDeviceAddress        = "esp-ip"
)

// KVRepository stores JSON documents by key.
type KVRepository interface {
	// Load returns the value stored under key, or errs.ErrNotFound when absent.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error

	// SaveAll stores several documents atomically.
	SaveAll(ctx context.Context, docs map[string][]byte) error
}
