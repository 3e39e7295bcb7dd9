package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/logging"
	"github.com/xiaoshi569/nextchat/internal/server/middleware"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

type ChatHandler struct {
	svc    *services.ChatService
	logger *logging.Logger
}

func NewChatHandler(svc *services.ChatService, logger *logging.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	list, err := h.svc.ListSessions(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]types.Session, 0, len(list))
	for i := range list {
		out = append(out, sessionDTO(&list[i], false))
	}
	c.JSON(http.StatusOK, types.SessionsResponse{Success: true, Sessions: out})
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	s, err := h.svc.GetSession(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.SessionResponse{Success: true, Session: sessionDTO(s, true)})
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	var body types.CreateSessionRequest
	if !bindJSON(c, &body) {
		return
	}
	s, err := h.svc.CreateSession(c.Request.Context(), middleware.UserIDFromContext(c), body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.SessionResponse{Success: true, Session: sessionDTO(s, false)})
}

func (h *ChatHandler) UpdateSession(c *gin.Context) {
	var body types.UpdateSessionRequest
	if !bindJSON(c, &body) {
		return
	}
	s, err := h.svc.UpdateSession(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id"), body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.SessionResponse{Success: true, Session: sessionDTO(s, false)})
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), middleware.UserIDFromContext(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.DeletedResponse{Success: true, Message: "session deleted"})
}

func (h *ChatHandler) AppendMessage(c *gin.Context) {
	var body types.AppendMessageRequest
	if !bindJSON(c, &body) {
		return
	}
	m, err := h.svc.AppendMessage(c.Request.Context(), middleware.UserIDFromContext(c), body)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, types.MessageResponse{Success: true, Message: messageDTO(m)})
}
