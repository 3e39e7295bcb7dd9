package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xiaoshi569/nextchat/internal/state"
)

type sessionsResponse struct {
	Success  bool             `json:"success"`
	Current  int              `json:"current"`
	Sessions []*state.Session `json:"sessions"`
}

type createSessionBody struct {
	Topic string `json:"topic"`
}

// updateSessionBody carries the user-editable fields. Nil fields are left
// untouched.
type updateSessionBody struct {
	Topic              *string     `json:"topic"`
	MemoryPrompt       *string     `json:"memoryPrompt"`
	LastSummarizeIndex *int        `json:"lastSummarizeIndex"`
	ClearContextIndex  *int        `json:"clearContextIndex"`
	Mask               *state.Mask `json:"mask"`
}

type appendMessageBody struct {
	Role          state.Role `json:"role" binding:"required,oneof=user assistant system"`
	Content       string     `json:"content"`
	Model         string     `json:"model"`
	AudioURL      string     `json:"audioUrl"`
	IsMcpResponse bool       `json:"isMcpResponse"`
}

func (h *Control) ListSessions(c *gin.Context) {
	_, idx, _ := h.Store.Current()
	writeJSON(c, http.StatusOK, sessionsResponse{Success: true, Current: idx, Sessions: h.Store.Sessions()})
}

func (h *Control) GetSession(c *gin.Context) {
	s, ok := h.Store.Session(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, state.ErrSessionNotFound.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "session": s})
}

func (h *Control) CreateSession(c *gin.Context) {
	var body createSessionBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	s := h.Store.NewSession(strings.TrimSpace(body.Topic))
	writeJSON(c, http.StatusCreated, gin.H{"success": true, "session": s})
}

func (h *Control) UpdateSession(c *gin.Context) {
	var body updateSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json body")
		return
	}
	if body.LastSummarizeIndex != nil && *body.LastSummarizeIndex < 0 {
		writeError(c, http.StatusBadRequest, "lastSummarizeIndex must not be negative")
		return
	}
	s, err := h.Store.UpdateSession(c.Param("id"), func(s *state.Session) {
		if body.Topic != nil {
			s.Topic = *body.Topic
		}
		if body.MemoryPrompt != nil {
			s.MemoryPrompt = *body.MemoryPrompt
		}
		if body.LastSummarizeIndex != nil {
			s.LastSummarizeIndex = *body.LastSummarizeIndex
		}
		if body.ClearContextIndex != nil {
			v := *body.ClearContextIndex
			s.ClearContextIndex = &v
		}
		if body.Mask != nil {
			s.Mask = *body.Mask
		}
	})
	if errors.Is(err, state.ErrSessionNotFound) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "session": s})
}

func (h *Control) SelectSession(c *gin.Context) {
	if err := h.Store.Select(c.Param("id")); err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

// DeleteSession removes the session locally and mirrors the delete to the
// server when the server holds it.
func (h *Control) DeleteSession(c *gin.Context) {
	err := h.Engine.DeleteSession(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, state.ErrSessionNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case err != nil:
		h.writeRemoteError(c, err)
	default:
		writeJSON(c, http.StatusOK, gin.H{"success": true, "message": "session deleted"})
	}
}

func (h *Control) AppendMessage(c *gin.Context) {
	var body appendMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "role must be one of user assistant system")
		return
	}
	msg, err := h.Engine.AppendMessage(c.Param("id"), state.Message{
		Role:          body.Role,
		Content:       body.Content,
		Model:         body.Model,
		AudioURL:      body.AudioURL,
		IsMcpResponse: body.IsMcpResponse,
	})
	if err != nil {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"success": true, "message": msg})
}
