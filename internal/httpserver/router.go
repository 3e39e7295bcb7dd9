// Package httpserver builds the sync client's local control API.
package httpserver

import (
	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/handlers"
	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/server/middleware"
)

func NewRouter(h *handlers.Control) *gin.Engine {
	if h.Logger == nil {
		h.Logger = logging.Discard()
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(h.Logger))

	r.GET("/", h.Root)

	r.GET("/sessions", h.ListSessions)
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:id", h.GetSession)
	r.PATCH("/sessions/:id", h.UpdateSession)
	r.DELETE("/sessions/:id", h.DeleteSession)
	r.POST("/sessions/:id/select", h.SelectSession)
	r.POST("/sessions/:id/messages", h.AppendMessage)

	r.GET("/sync/status", h.SyncStatus)
	r.POST("/sync/push", h.Push)

	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", h.Me)
	return r
}
