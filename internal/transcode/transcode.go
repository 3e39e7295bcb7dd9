// Package transcode converts sessions between the local store shape and the
// chat server's wire shape. Every function is pure and total.
package transcode

import (
	"encoding/json"
	"time"

	"github.com/xiaoshi569/nextchat/internal/state"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

// DecodeMask parses a serialized mask. Empty, null, malformed or non-object
// input yields an empty mask.
func DecodeMask(raw string) state.Mask {
	if raw == "" {
		return state.Mask{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return state.Mask{}
	}
	return state.Mask(m)
}

func EncodeMask(m state.Mask) string {
	if m == nil {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseTimestamp converts an RFC 3339 timestamp to epoch milliseconds, or 0.
func ParseTimestamp(s string) int64 {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// ToLocal maps a remote session to the local shape. Counters are not carried
// by the wire shape the client reads and start at zero.
func ToLocal(r types.Session) *state.Session {
	s := &state.Session{
		ID:                 r.ID,
		Topic:              r.Topic,
		MemoryPrompt:       r.MemoryPrompt,
		LastUpdate:         ParseTimestamp(r.LastUpdate),
		LastSummarizeIndex: r.LastSummarizeIndex,
		Mask:               DecodeMask(r.MaskConfig),
		Messages:           make([]state.Message, 0, len(r.Messages)),
		Synced:             true,
	}
	if r.ClearContextIndex != nil {
		v := *r.ClearContextIndex
		s.ClearContextIndex = &v
	}
	for _, m := range r.Messages {
		s.Messages = append(s.Messages, MessageToLocal(m))
	}
	return s
}

func MessageToLocal(m types.Message) state.Message {
	return state.Message{
		ID:            m.ID,
		Role:          state.Role(m.Role),
		Content:       m.Content,
		Date:          m.Date,
		Model:         m.Model,
		Tools:         toolsToLocal(m.Tools),
		AudioURL:      m.AudioURL,
		IsMcpResponse: m.IsMcpResponse,
		Synced:        true,
	}
}

func ToRemoteCreate(s *state.Session) types.CreateSessionRequest {
	return types.CreateSessionRequest{
		ID:           s.ID,
		Topic:        s.Topic,
		MemoryPrompt: s.MemoryPrompt,
		MaskConfig:   EncodeMask(s.Mask),
	}
}

// ToRemotePatch is the field subset a push sends for an existing session.
func ToRemotePatch(s *state.Session) types.UpdateSessionRequest {
	topic, memory, mask := s.Topic, s.MemoryPrompt, EncodeMask(s.Mask)
	return types.UpdateSessionRequest{
		Topic:        &topic,
		MemoryPrompt: &memory,
		MaskConfig:   &mask,
	}
}

// ToRemoteUpdate carries every mutable field, counters included.
func ToRemoteUpdate(s *state.Session) types.UpdateSessionRequest {
	req := ToRemotePatch(s)
	lsi := s.LastSummarizeIndex
	req.LastSummarizeIndex = &lsi
	if s.ClearContextIndex != nil {
		v := *s.ClearContextIndex
		req.ClearContextIndex = &v
	}
	req.Stat = &types.Stat{
		TokenCount: s.Stat.TokenCount,
		WordCount:  s.Stat.WordCount,
		CharCount:  s.Stat.CharCount,
	}
	return req
}

func ToRemoteMessage(sessionID string, m state.Message) types.AppendMessageRequest {
	content, _ := json.Marshal(m.Content)
	req := types.AppendMessageRequest{
		ID:            m.ID,
		SessionID:     sessionID,
		Role:          types.Role(m.Role),
		Content:       content,
		Model:         m.Model,
		Date:          m.Date,
		AudioURL:      m.AudioURL,
		IsMcpResponse: m.IsMcpResponse,
	}
	if len(m.Tools) > 0 && json.Valid(m.Tools) {
		req.Tools = append(json.RawMessage(nil), m.Tools...)
	}
	return req
}

func toolsToLocal(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
