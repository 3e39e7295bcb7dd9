package repos

import (
	"context"
	"database/sql"

	"github.com/xiaoshi569/nextchat/internal/server/models"
)

const messageColumns = `id, session_id, seq, role, content, model, msg_date, tools, audio_url, is_mcp_response, created_at`

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// ListBySession returns messages in creation order.
func (r *MessageRepo) ListBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, r.db.q(`
		SELECT `+messageColumns+` FROM chat_messages WHERE session_id = ? ORDER BY seq ASC
	`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*models.ChatMessage, error) {
	row := tx.QueryRowContext(ctx, r.db.q(`SELECT `+messageColumns+` FROM chat_messages WHERE id = ?`), id)
	var m models.ChatMessage
	if err := scanMessage(row, &m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *MessageRepo) NextSeqTx(ctx context.Context, tx *sql.Tx, sessionID string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx, r.db.q(`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE session_id = ?`), sessionID).Scan(&next)
	return next, err
}

func (r *MessageRepo) InsertTx(ctx context.Context, tx *sql.Tx, m *models.ChatMessage) error {
	_, err := tx.ExecContext(ctx, r.db.q(`
		INSERT INTO chat_messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), m.ID, m.SessionID, m.Seq, m.Role, m.Content, m.Model, m.Date, m.Tools, m.AudioURL, boolToInt(m.IsMcpResponse), m.CreatedAt)
	return err
}

func scanMessage(row scanner, m *models.ChatMessage) error {
	var mcp int
	if err := row.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Role, &m.Content, &m.Model, &m.Date, &m.Tools, &m.AudioURL, &mcp, &m.CreatedAt); err != nil {
		return err
	}
	m.IsMcpResponse = mcp != 0
	return nil
}
