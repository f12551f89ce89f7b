package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
const DefaultAccessTokenTTL = 15 * time.Minute

// DefaultRefreshTokenTTL defines the fallback validity period for refresh tokens.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// TokenType distinguishes the two token roles. Access and refresh tokens are
// structurally identical; only the type claim and expiry horizon differ.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	// ErrTokenMalformed is returned when the token cannot be parsed at all.
	ErrTokenMalformed = errors.New("token: malformed")
	// ErrTokenExpired is returned when the token signature is valid but the expiry has passed.
	ErrTokenExpired = errors.New("token: expired")
	// ErrTokenInvalid covers bad signatures, wrong issuer, and type mismatches.
	ErrTokenInvalid = errors.New("token: invalid")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret          string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Clock           func() time.Time
}

// Claims is the decoded payload of an issued token. Role and permission codes
// are embedded so downstream services can authorise without a user-store
// round-trip; trust still requires a live session record in the cache.
type Claims struct {
	UserID      int64     `json:"uid"`
	Username    string    `json:"uname,omitempty"`
	UserKey     string    `json:"ukey,omitempty"`
	DeviceID    string    `json:"did,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"perms,omitempty"`
	TokenType   TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// HasPermission reports whether the claims carry the given permission code.
func (c *Claims) HasPermission(code string) bool {
	for _, p := range c.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

// TokenInput holds the identity fields stamped into a new token.
type TokenInput struct {
	UserID      int64
	Username    string
	UserKey     string
	DeviceID    string
	Roles       []string
	Permissions []string
	TokenID     string
}

// JWTService issues and decodes signed identity tokens. Both operations are
// pure computation; session liveness is the SessionService's concern.
type JWTService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
	}, nil
}

// AccessTokenTTL exposes the configured access token lifetime.
func (s *JWTService) AccessTokenTTL() time.Duration { return s.accessTTL }

// RefreshTokenTTL exposes the configured refresh token lifetime.
func (s *JWTService) RefreshTokenTTL() time.Duration { return s.refreshTTL }

// Issue signs a token of the requested type for the supplied identity.
func (s *JWTService) Issue(input TokenInput, tokenType TokenType) (string, error) {
	if input.UserID <= 0 {
		return "", errors.New("jwt: user id is required")
	}
	if tokenType != TokenTypeAccess && tokenType != TokenTypeRefresh {
		return "", fmt.Errorf("jwt: unknown token type %q", tokenType)
	}

	ttl := s.accessTTL
	if tokenType == TokenTypeRefresh {
		ttl = s.refreshTTL
	}

	now := s.now()
	claims := &Claims{
		UserID:      input.UserID,
		Username:    input.Username,
		UserKey:     input.UserKey,
		DeviceID:    input.DeviceID,
		Roles:       input.Roles,
		Permissions: input.Permissions,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", input.UserID),
			Issuer:    s.issuer,
			ID:        input.TokenID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Decode parses and validates a signed token, enforcing the expected type.
func (s *JWTService) Decode(tokenString string, expected TokenType) (*Claims, error) {
	claims, err := s.parse(tokenString, true)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != expected {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, expected)
	}

	return claims, nil
}

// DecodeLenient parses a token of either type, accepting expired tokens as
// long as the signature verifies. Logout uses it so a session can still be
// terminated with a token that has aged out.
func (s *JWTService) DecodeLenient(tokenString string) (*Claims, error) {
	return s.parse(tokenString, false)
}

func (s *JWTService) parse(tokenString string, enforceExpiry bool) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrTokenMalformed
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if !enforceExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parser := jwt.NewParser(opts...)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenMalformed
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrTokenInvalid)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id claim", ErrTokenInvalid)
	}

	return &claims, nil
}
