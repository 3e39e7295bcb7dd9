package state

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

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

// Mask is the opaque per-session configuration (model, theme, prompts...).
type Mask map[string]any

type Stat struct {
	TokenCount int `json:"tokenCount"`
	WordCount  int `json:"wordCount"`
	CharCount  int `json:"charCount"`
}

type Message struct {
	ID            string          `json:"id"`
	Role          Role            `json:"role"`
	Content       string          `json:"content"`
	Date          string          `json:"date"`
	Model         string          `json:"model,omitempty"`
	Tools         json.RawMessage `json:"tools,omitempty"`
	AudioURL      string          `json:"audioUrl,omitempty"`
	IsMcpResponse bool            `json:"isMcpResponse,omitempty"`

	// Synced is set once the remote store holds this message.
	Synced bool `json:"synced"`
}

type Session struct {
	ID                 string    `json:"id"`
	Topic              string    `json:"topic"`
	MemoryPrompt       string    `json:"memoryPrompt"`
	Messages           []Message `json:"messages"`
	LastUpdate         int64     `json:"lastUpdate"`
	LastSummarizeIndex int       `json:"lastSummarizeIndex"`
	ClearContextIndex  *int      `json:"clearContextIndex,omitempty"`
	Mask               Mask      `json:"mask"`
	Stat               Stat      `json:"stat"`

	// Synced is set once the remote store has confirmed the session id.
	Synced bool `json:"synced"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.clone()
		}
	}
	if s.ClearContextIndex != nil {
		v := *s.ClearContextIndex
		out.ClearContextIndex = &v
	}
	out.Mask = s.Mask.Clone()
	return &out
}

func (m Message) clone() Message {
	if m.Tools != nil {
		m.Tools = append(json.RawMessage(nil), m.Tools...)
	}
	return m
}

// Clone deep-copies the mask. A nil mask clones to an empty one.
func (m Mask) Clone() Mask {
	out := make(Mask, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Mask(t).Clone())
	case Mask:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// PendingMessages returns the messages not yet held remotely, in creation
// order.
func (s *Session) PendingMessages() []Message {
	var out []Message
	for _, m := range s.Messages {
		if !m.Synced {
			out = append(out, m.clone())
		}
	}
	return out
}

// ComputeStat derives the counters shown next to a session.
func ComputeStat(msgs []Message) Stat {
	var st Stat
	for _, m := range msgs {
		st.CharCount += utf8.RuneCountInString(m.Content)
		st.WordCount += len(strings.Fields(m.Content))
	}
	st.TokenCount = (st.CharCount + 3) / 4
	return st
}
