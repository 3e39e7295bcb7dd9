package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/auth"
	"github.com/xiaoshi569/nextchat/internal/syncengine"
)

type syncStatusResponse struct {
	syncengine.Status
	Authenticated bool           `json:"authenticated"`
	Identity      *auth.Identity `json:"identity,omitempty"`
}

func (h *Control) SyncStatus(c *gin.Context) {
	resp := syncStatusResponse{Status: h.Engine.Status()}
	if id, ok := h.Creds.Identity(); ok {
		resp.Authenticated = true
		resp.Identity = &id
	}
	writeJSON(c, http.StatusOK, resp)
}

// Push runs a push right away instead of waiting for the debounce window.
func (h *Control) Push(c *gin.Context) {
	if !h.Creds.IsAuthenticated() {
		writeError(c, http.StatusUnauthorized, "sign-in required")
		return
	}
	results := h.Engine.Push(c.Request.Context())
	if results == nil {
		results = []syncengine.PushResult{}
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "results": results})
}
