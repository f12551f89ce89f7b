package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cloudsuite/cloudauth/internal/models"
	"github.com/cloudsuite/cloudauth/pkg/crypto"
)

// ErrUserNotFound indicates no user record matches the supplied username.
var ErrUserNotFound = errors.New("users: not found")

// Credential is the read model the session service consumes. Role and
// permission codes travel into token claims; the password hash never leaves
// this package except through VerifyPassword.
type Credential struct {
	UserID       int64
	Username     string
	PasswordHash string
	Nickname     string
	Roles        []string
	Permissions  []string
	Enabled      bool
}

// Store looks up login credentials. The session service depends on this
// interface, not on gorm, so tests substitute fakes freely.
type Store interface {
	FindUser(ctx context.Context, username string) (*Credential, error)
	RecordLogin(ctx context.Context, userID int64, ip string) error
}

// GormStore implements Store over the primary SQL database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a credential store backed by the provided database.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("users: db is required")
	}
	return &GormStore{db: db}, nil
}

// FindUser loads the credential record for a username.
func (s *GormStore) FindUser(ctx context.Context, username string) (*Credential, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("users: find %q: %w", username, err)
	}

	return &Credential{
		UserID:       user.ID,
		Username:     user.Username,
		PasswordHash: user.Password,
		Nickname:     user.Nickname,
		Roles:        decodeCodes(user.Roles),
		Permissions:  decodeCodes(user.Permissions),
		Enabled:      user.Enabled,
	}, nil
}

// RecordLogin stamps the last successful login time and source address.
func (s *GormStore) RecordLogin(ctx context.Context, userID int64, ip string) error {
	now := time.Now()
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_login_at": now,
			"last_login_ip": strings.TrimSpace(ip),
		}).Error
}

// CreateUser registers a new user with a bcrypt-hashed password. Used by
// seeding and admin tooling.
func (s *GormStore) CreateUser(ctx context.Context, username, password string, roles, permissions []string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("users: username and password are required")
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}

	user := &models.User{
		Username:    username,
		Password:    hash,
		Roles:       encodeCodes(roles),
		Permissions: encodeCodes(permissions),
		Enabled:     true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("users: create %q: %w", username, err)
	}
	return user, nil
}

func decodeCodes(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var codes []string
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil
	}
	return codes
}

func encodeCodes(codes []string) []byte {
	if len(codes) == 0 {
		return []byte("[]")
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return []byte("[]")
	}
	return raw
}
