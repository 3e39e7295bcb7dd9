package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/xiaoshi569/nextchat/internal/server/models"
	"github.com/xiaoshi569/nextchat/internal/server/repos"
	"github.com/xiaoshi569/nextchat/pkg/types"
)

const (
	defaultTopic  = "New Chat"
	maxIDLength   = 64
	messageLayout = "2006/1/2 15:04:05"
)

type ChatService struct {
	db       *repos.DB
	sessions *repos.SessionRepo
	messages *repos.MessageRepo
	now      func() time.Time
}

func NewChatService(db *repos.DB) *ChatService {
	return &ChatService{
		db:       db,
		sessions: repos.NewSessionRepo(db),
		messages: repos.NewMessageRepo(db),
		now:      time.Now,
	}
}

func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]models.ChatSession, error) {
	list, err := s.sessions.ListByUser(ctx, userID)
	return list, errors.Wrap(err, "list sessions")
}

// GetSession returns the session with its messages in creation order.
func (s *ChatService) GetSession(ctx context.Context, userID, id string) (*models.ChatSession, error) {
	sess, err := s.sessions.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, mapNotFound(err, "get session")
	}
	msgs, err := s.messages.ListBySession(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	sess.Messages = msgs
	sess.MessageCount = len(msgs)
	return sess, nil
}

// CreateSession keeps a client-proposed id when it is free. Re-creating an
// id the caller already owns returns the existing session.
func (s *ChatService) CreateSession(ctx context.Context, userID string, in types.CreateSessionRequest) (*models.ChatSession, error) {
	mask, err := normalizeMask(in.MaskConfig)
	if err != nil {
		return nil, err
	}
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		topic = defaultTopic
	}
	now := s.now().UnixMilli()
	sess := &models.ChatSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Topic:        topic,
		MemoryPrompt: in.MemoryPrompt,
		MaskConfig:   mask,
		LastUpdate:   now,
		CreatedAt:    now,
	}

	var existing *models.ChatSession
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if id := strings.TrimSpace(in.ID); id != "" && len(id) <= maxIDLength {
			owner, err := s.sessions.OwnerTx(ctx, tx, id)
			switch {
			case errors.Is(err, repos.ErrNotFound):
				sess.ID = id
			case err != nil:
				return err
			case owner == userID:
				existing, err = s.sessions.GetOwnedTx(ctx, tx, userID, id)
				return err
			}
		}
		return s.sessions.InsertTx(ctx, tx, sess)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	if existing != nil {
		return existing, nil
	}
	return sess, nil
}

// UpdateSession applies the non-nil fields of in.
func (s *ChatService) UpdateSession(ctx context.Context, userID, id string, in types.UpdateSessionRequest) (*models.ChatSession, error) {
	if in.LastSummarizeIndex != nil && *in.LastSummarizeIndex < 0 {
		return nil, invalid("lastSummarizeIndex must not be negative")
	}
	if in.ClearContextIndex != nil && *in.ClearContextIndex < 0 {
		return nil, invalid("clearContextIndex must not be negative")
	}
	var mask *string
	if in.MaskConfig != nil {
		m, err := normalizeMask(*in.MaskConfig)
		if err != nil {
			return nil, err
		}
		mask = &m
	}

	var out *models.ChatSession
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		sess, err := s.sessions.GetOwnedTx(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if in.Topic != nil {
			sess.Topic = *in.Topic
		}
		if in.MemoryPrompt != nil {
			sess.MemoryPrompt = *in.MemoryPrompt
		}
		if in.LastSummarizeIndex != nil {
			sess.LastSummarizeIndex = *in.LastSummarizeIndex
		}
		if in.ClearContextIndex != nil {
			v := *in.ClearContextIndex
			sess.ClearContextIndex = &v
		}
		if mask != nil {
			sess.MaskConfig = *mask
		}
		if in.Stat != nil {
			sess.TokenCount = in.Stat.TokenCount
			sess.WordCount = in.Stat.WordCount
			sess.CharCount = in.Stat.CharCount
		}
		sess.LastUpdate = s.now().UnixMilli()
		if err := s.sessions.UpdateTx(ctx, tx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, mapNotFound(err, "update session")
	}
	return out, nil
}

// DeleteSession removes the session and all of its messages. A second
// delete of the same id is not found.
func (s *ChatService) DeleteSession(ctx context.Context, userID, id string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.sessions.DeleteOwnedTx(ctx, tx, userID, id)
	})
	return mapNotFound(err, "delete session")
}

// AppendMessage adds a message at the end of a session the caller owns and
// bumps the session's lastUpdate. Resending a message id already stored in
// the same session returns the stored message.
func (s *ChatService) AppendMessage(ctx context.Context, userID string, in types.AppendMessageRequest) (*models.ChatMessage, error) {
	if !in.Role.Valid() {
		return nil, invalid("role must be one of user, assistant, system")
	}
	now := s.now()
	msg := &models.ChatMessage{
		ID:            shortuuid.New(),
		SessionID:     in.SessionID,
		Role:          string(in.Role),
		Content:       flattenJSON(in.Content),
		Model:         in.Model,
		Date:          in.Date,
		Tools:         flattenJSON(in.Tools),
		AudioURL:      in.AudioURL,
		IsMcpResponse: in.IsMcpResponse,
		CreatedAt:     now.UnixMilli(),
	}
	if msg.Date == "" {
		msg.Date = now.Format(messageLayout)
	}

	var out *models.ChatMessage
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.sessions.GetOwnedTx(ctx, tx, userID, in.SessionID); err != nil {
			return err
		}
		if id := strings.TrimSpace(in.ID); id != "" && len(id) <= maxIDLength {
			prior, err := s.messages.GetTx(ctx, tx, id)
			switch {
			case errors.Is(err, repos.ErrNotFound):
				msg.ID = id
			case err != nil:
				return err
			case prior.SessionID == in.SessionID:
				out = prior
				return nil
			}
		}
		seq, err := s.messages.NextSeqTx(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		msg.Seq = seq
		if err := s.messages.InsertTx(ctx, tx, msg); err != nil {
			return err
		}
		out = msg
		return s.sessions.TouchTx(ctx, tx, in.SessionID, msg.CreatedAt)
	})
	if err != nil {
		return nil, mapNotFound(err, "append message")
	}
	return out, nil
}

func mapNotFound(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repos.ErrNotFound) {
		return ErrSessionNotFound
	}
	return errors.Wrap(err, op)
}

// normalizeMask accepts a serialized JSON object; empty input stores "{}".
func normalizeMask(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "{}", nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return "", invalid("maskConfig must be a JSON object")
	}
	return raw, nil
}

// flattenJSON stores a JSON string as its text and any other JSON value in
// serialized form.
func flattenJSON(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
