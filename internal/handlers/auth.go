package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/cloudsuite/cloudauth/internal/auth"
	"github.com/cloudsuite/cloudauth/internal/middleware"
	apperrors "github.com/cloudsuite/cloudauth/pkg/errors"
	"github.com/cloudsuite/cloudauth/pkg/metrics"
	"github.com/cloudsuite/cloudauth/pkg/response"
)

// HeaderDeviceID carries the client-supplied device hint used for session binding.
const HeaderDeviceID = "X-Device-Id"

// AuthHandler manages authentication flows (login/refresh/logout/me).
type AuthHandler struct {
	sessions *iauth.SessionService
}

func NewAuthHandler(sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

func tokensFromPair(pair iauth.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (h *AuthHandler) fingerprint(c *gin.Context) iauth.Fingerprint {
	return iauth.Fingerprint{
		DeviceID:  c.GetHeader(HeaderDeviceID),
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, session, err := h.sessions.Login(c.Request.Context(), req.Username, req.Password, h.fingerprint(c))
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, mapAuthError(err))
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokensFromPair(pair),
		"user": gin.H{
			"id":       session.UserID,
			"username": session.Username,
			"roles":    session.Roles,
		},
		"permissions": session.Permissions,
	})
}

type refreshRequest struct {
	// The token travels in the body, not the query string, so it never lands
	// in access logs.
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken), h.fingerprint(c))
	if err != nil {
		response.Error(c, mapAuthError(err))
		return
	}

	response.Success(c, http.StatusOK, tokensFromPair(pair))
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Logout(c.Request.Context(), token); err != nil {
		response.Error(c, mapAuthError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":          identity.UserID,
		"username":    identity.Username,
		"roles":       identity.Roles,
		"permissions": identity.Permissions,
	})
}

// mapAuthError translates session errors into API errors. Credential and
// token failures collapse into generic 401 bodies; infrastructure outages
// surface as 503 so an unreachable cache never logs users out.
func mapAuthError(err error) error {
	switch {
	case errors.Is(err, iauth.ErrInvalidCredentials):
		return apperrors.ErrInvalidCredentials
	case errors.Is(err, iauth.ErrAccountDisabled):
		return apperrors.ErrAccountDisabled
	case errors.Is(err, iauth.ErrTokenExpired):
		return apperrors.ErrTokenExpired
	case errors.Is(err, iauth.ErrCacheUnavailable), errors.Is(err, iauth.ErrStoreUnavailable):
		return apperrors.ErrServiceUnavailable
	case errors.Is(err, iauth.ErrSessionNotFound),
		errors.Is(err, iauth.ErrSessionRevoked),
		errors.Is(err, iauth.ErrDeviceMismatch),
		errors.Is(err, iauth.ErrTokenInvalid),
		errors.Is(err, iauth.ErrTokenMalformed):
		return apperrors.ErrUnauthorized
	default:
		return apperrors.ErrInternalServer.WithInternal(err)
	}
}
