package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/pkg/types"
)

func (h *Control) Login(c *gin.Context) {
	var body types.LoginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "email and password are required")
		return
	}
	id, err := h.Auth.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		h.writeRemoteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "identity": id})
}

func (h *Control) Register(c *gin.Context) {
	var body types.RegisterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "email, username (3-20) and password (6+) are required")
		return
	}
	id, err := h.Auth.Register(c.Request.Context(), body.Email, body.Username, body.Password)
	if err != nil {
		h.writeRemoteError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "identity": id})
}

func (h *Control) Logout(c *gin.Context) {
	h.Auth.Logout()
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

func (h *Control) Me(c *gin.Context) {
	id, ok := h.Creds.Identity()
	if !ok {
		writeError(c, http.StatusUnauthorized, "sign-in required")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "identity": id})
}
