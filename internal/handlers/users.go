package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cloudsuite/cloudauth/internal/users"
	apperrors "github.com/cloudsuite/cloudauth/pkg/errors"
	"github.com/cloudsuite/cloudauth/pkg/response"
)

// UsersHandler exposes the small admin surface over the credential store.
type UsersHandler struct {
	store *users.GormStore
}

func NewUsersHandler(store *users.GormStore) *UsersHandler {
	return &UsersHandler{store: store}
}

type createUserRequest struct {
	Username    string   `json:"username" validate:"required,max=64"`
	Password    string   `json:"password" validate:"required,min=8,max=128"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// POST /admin/users
func (h *UsersHandler) Create(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.store.CreateUser(c.Request.Context(), strings.TrimSpace(req.Username), req.Password, req.Roles, req.Permissions)
	if err != nil {
		response.Error(c, apperrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
	})
}
