package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is a credential-store row. Role and permission codes are denormalised
// into JSON columns; the session service copies them into token claims at
// login so downstream services never query this table.
type User struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"uniqueIndex;not null;size:64" json:"username"`
	Password string `gorm:"not null" json:"-"`
	Nickname string `gorm:"size:64" json:"nickname"`
	Email    string `gorm:"index;size:128" json:"email"`

	Roles       datatypes.JSON `json:"roles"`
	Permissions datatypes.JSON `json:"permissions"`

	Enabled bool `gorm:"default:true" json:"enabled"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:45" json:"last_login_ip"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
