package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/server/middleware"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

type AdminHandler struct {
	svc    *services.AdminService
	logger *logging.Logger
}

func NewAdminHandler(svc *services.AdminService, logger *logging.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]types.User, 0, len(users))
	for i := range users {
		out = append(out, userDTO(&users[i], true))
	}
	c.JSON(http.StatusOK, types.UsersResponse{Success: true, Users: out})
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var body types.UpdateUserRequest
	if !bindJSON(c, &body) {
		return
	}
	u, err := h.svc.SetUserActive(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), *body.IsActive)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.UserResponse{Success: true, User: userDTO(u, true)})
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.DeletedResponse{Success: true, Message: "user deleted"})
}

func (h *AdminHandler) ListAPIKeys(c *gin.Context) {
	keys, err := h.svc.ListAPIKeys(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]types.APIKey, 0, len(keys))
	for i := range keys {
		out = append(out, apiKeyDTO(&keys[i]))
	}
	c.JSON(http.StatusOK, types.APIKeysResponse{Success: true, APIKeys: out})
}

func (h *AdminHandler) CreateAPIKey(c *gin.Context) {
	var body types.CreateAPIKeyRequest
	if !bindJSON(c, &body) {
		return
	}
	k, err := h.svc.CreateAPIKey(c.Request.Context(), body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.APIKeyResponse{Success: true, APIKey: apiKeyDTO(k)})
}

func (h *AdminHandler) UpdateAPIKey(c *gin.Context) {
	var body types.UpdateAPIKeyRequest
	if !bindJSON(c, &body) {
		return
	}
	k, err := h.svc.UpdateAPIKey(c.Request.Context(), c.Param("id"), body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.APIKeyResponse{Success: true, APIKey: apiKeyDTO(k)})
}

func (h *AdminHandler) DeleteAPIKey(c *gin.Context) {
	if err := h.svc.DeleteAPIKey(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.DeletedResponse{Success: true, Message: "api key deleted"})
}
