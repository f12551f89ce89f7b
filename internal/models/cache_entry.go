package models

import "time"

// CacheEntry backs the database cache fallback used when Redis is not
// configured. Expired rows are purged by the maintenance cleaner.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:255"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
