// Package types holds the JSON shapes exchanged between the sync client and
// the chat server.
package types

import "encoding/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Session struct {
	ID                 string    `json:"id"`
	Topic              string    `json:"topic"`
	MemoryPrompt       string    `json:"memoryPrompt"`
	LastSummarizeIndex int       `json:"lastSummarizeIndex"`
	ClearContextIndex  *int      `json:"clearContextIndex,omitempty"`
	MaskConfig         string    `json:"maskConfig"`
	TokenCount         int       `json:"tokenCount"`
	WordCount          int       `json:"wordCount"`
	CharCount          int       `json:"charCount"`
	LastUpdate         string    `json:"lastUpdate"`
	CreatedAt          string    `json:"createdAt"`
	Messages           []Message `json:"messages,omitempty"`
	Count              *Count    `json:"_count,omitempty"`
}

type Count struct {
	Messages int `json:"messages"`
}

type Message struct {
	ID            string `json:"id"`
	SessionID     string `json:"sessionId"`
	Role          Role   `json:"role"`
	Content       string `json:"content"`
	Model         string `json:"model,omitempty"`
	Date          string `json:"date"`
	Tools         string `json:"tools,omitempty"`
	AudioURL      string `json:"audioUrl,omitempty"`
	IsMcpResponse bool   `json:"isMcpResponse"`
	CreatedAt     string `json:"createdAt"`
}

type Stat struct {
	TokenCount int `json:"tokenCount"`
	WordCount  int `json:"wordCount"`
	CharCount  int `json:"charCount"`
}

// CreateSessionRequest is the body of POST /chat/sessions. ID is a
// client-proposed id the server keeps when it is free.
type CreateSessionRequest struct {
	ID           string `json:"id,omitempty"`
	Topic        string `json:"topic"`
	MemoryPrompt string `json:"memoryPrompt"`
	MaskConfig   string `json:"maskConfig"`
}

// UpdateSessionRequest is the body of PATCH /chat/sessions/{id}. Nil fields
// are left untouched.
type UpdateSessionRequest struct {
	Topic              *string `json:"topic,omitempty"`
	MemoryPrompt       *string `json:"memoryPrompt,omitempty"`
	LastSummarizeIndex *int    `json:"lastSummarizeIndex,omitempty"`
	ClearContextIndex  *int    `json:"clearContextIndex,omitempty"`
	MaskConfig         *string `json:"maskConfig,omitempty"`
	Stat               *Stat   `json:"stat,omitempty"`
}

// AppendMessageRequest is the body of POST /chat/messages. Content and Tools
// accept either a string or any JSON value, which is stored serialized.
type AppendMessageRequest struct {
	ID            string          `json:"id,omitempty"`
	SessionID     string          `json:"sessionId" binding:"required"`
	Role          Role            `json:"role" binding:"required,oneof=user assistant system"`
	Content       json.RawMessage `json:"content"`
	Model         string          `json:"model,omitempty"`
	Date          string          `json:"date,omitempty"`
	Tools         json.RawMessage `json:"tools,omitempty"`
	AudioURL      string          `json:"audioUrl,omitempty"`
	IsMcpResponse bool            `json:"isMcpResponse"`
}

type SessionsResponse struct {
	Success  bool      `json:"success"`
	Sessions []Session `json:"sessions"`
}

type SessionResponse struct {
	Success bool    `json:"success"`
	Session Session `json:"session"`
}

type MessageResponse struct {
	Success bool    `json:"success"`
	Message Message `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
