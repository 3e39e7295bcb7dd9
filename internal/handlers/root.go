// Package handlers serves the sync client's local control API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/auth"
	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/remote"
	"github.com/xiaoshi569/nextchat/internal/state"
	"github.com/xiaoshi569/nextchat/internal/syncengine"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

// Control holds what the control endpoints act on.
type Control struct {
	Store  *state.Store
	Engine *syncengine.Engine
	Creds  *auth.Store
	Auth   *auth.Manager
	Logger *logging.Logger
}

func (h *Control) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "chatsync", "authenticated": h.Creds.IsAuthenticated()})
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: msg})
}

// writeRemoteError maps a chat server failure to the status the control
// API reports for it.
func (h *Control) writeRemoteError(c *gin.Context, err error) {
	switch remote.Classify(err) {
	case remote.KindUnauthorized:
		writeError(c, http.StatusUnauthorized, "sign-in required")
	case remote.KindNotFound:
		writeError(c, http.StatusNotFound, err.Error())
	case remote.KindValidation:
		var reqErr *remote.RequestError
		if errors.As(err, &reqErr) && reqErr.Message != "" {
			writeError(c, http.StatusBadRequest, reqErr.Message)
			return
		}
		writeError(c, http.StatusBadRequest, err.Error())
	case remote.KindRequestFailed:
		var reqErr *remote.RequestError
		if errors.As(err, &reqErr) && reqErr.Status == http.StatusForbidden {
			writeError(c, http.StatusForbidden, reqErr.Message)
			return
		}
		writeError(c, http.StatusBadGateway, err.Error())
	default:
		h.Logger.Warnf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		writeError(c, http.StatusBadGateway, err.Error())
	}
}
