package handlers

import (
	"time"

	"github.com/xiaoshi569/nextchat/internal/server/models"
	"github.com/xiaoshi569/nextchat/internal/server/services"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func sessionDTO(s *models.ChatSession, withMessages bool) types.Session {
	out := types.Session{
		ID:                 s.ID,
		Topic:              s.Topic,
		MemoryPrompt:       s.MemoryPrompt,
		LastSummarizeIndex: s.LastSummarizeIndex,
		ClearContextIndex:  s.ClearContextIndex,
		MaskConfig:         s.MaskConfig,
		TokenCount:         s.TokenCount,
		WordCount:          s.WordCount,
		CharCount:          s.CharCount,
		LastUpdate:         formatMillis(s.LastUpdate),
		CreatedAt:          formatMillis(s.CreatedAt),
		Count:              &types.Count{Messages: s.MessageCount},
	}
	if withMessages {
		out.Messages = make([]types.Message, 0, len(s.Messages))
		for i := range s.Messages {
			out.Messages = append(out.Messages, messageDTO(&s.Messages[i]))
		}
	}
	return out
}

func messageDTO(m *models.ChatMessage) types.Message {
	return types.Message{
		ID:            m.ID,
		SessionID:     m.SessionID,
		Role:          types.Role(m.Role),
		Content:       m.Content,
		Model:         m.Model,
		Date:          m.Date,
		Tools:         m.Tools,
		AudioURL:      m.AudioURL,
		IsMcpResponse: m.IsMcpResponse,
		CreatedAt:     formatMillis(m.CreatedAt),
	}
}

func userDTO(u *models.User, admin bool) types.User {
	out := types.User{ID: u.ID, Email: u.Email, Username: u.Username, Role: types.UserRole(u.Role)}
	if admin {
		active := u.IsActive
		out.IsActive = &active
		out.CreatedAt = formatMillis(u.CreatedAt)
		out.Count = &struct {
			Sessions int `json:"sessions"`
		}{Sessions: u.SessionCount}
	}
	return out
}

func apiKeyDTO(k *services.APIKeyView) types.APIKey {
	return types.APIKey{
		ID:        k.ID,
		Provider:  k.Provider,
		Name:      k.Name,
		APIKey:    k.Masked,
		BaseURL:   k.BaseURL,
		Priority:  k.Priority,
		IsActive:  k.IsActive,
		CreatedAt: formatMillis(k.CreatedAt),
		UpdatedAt: formatMillis(k.UpdatedAt),
	}
}
