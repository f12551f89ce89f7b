package cache

import (
	"context"
	"time"
)

// Store represents the shared session cache used across service instances.
//
// GetDel is the atomic consume primitive the refresh-token rotation relies on:
// for a given key, concurrent callers must observe exactly one hit.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetDel(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
