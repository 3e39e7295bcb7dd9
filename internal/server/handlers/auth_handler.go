package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/server/middleware"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

type AuthHandler struct {
	svc    *services.AuthService
	logger *logging.Logger
}

func NewAuthHandler(svc *services.AuthService, logger *logging.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body types.LoginRequest
	if !bindJSON(c, &body) {
		return
	}
	u, token, err := h.svc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.AuthResponse{Success: true, User: userDTO(u, false), Token: token})
}

func (h *AuthHandler) Register(c *gin.Context) {
	var body types.RegisterRequest
	if !bindJSON(c, &body) {
		return
	}
	u, token, err := h.svc.Register(c.Request.Context(), body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.AuthResponse{Success: true, User: userDTO(u, false), Token: token})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u := middleware.UserFromContext(c)
	if u == nil {
		writeError(c, h.logger, services.ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, types.UserResponse{Success: true, User: userDTO(u, false)})
}
