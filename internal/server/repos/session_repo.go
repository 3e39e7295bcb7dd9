package repos

import (
	"context"
	"database/sql"

	"github.com/xiaoshi569/nextchat/internal/server/models"
)

const sessionColumns = `id, user_id, topic, memory_prompt, last_summarize_index, clear_context_index,
	mask_config, token_count, word_count, char_count, last_update, created_at`

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// ListByUser returns the user's sessions, most recently updated first, with
// message counts and no message bodies.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx, r.db.q(`
		SELECT `+sessionColumns+`,
			(SELECT COUNT(*) FROM chat_messages m WHERE m.session_id = chat_sessions.id)
		FROM chat_sessions
		WHERE user_id = ?
		ORDER BY last_update DESC, created_at DESC
	`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ChatSession, 0)
	for rows.Next() {
		var s models.ChatSession
		if err := scanSession(rows, &s, &s.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetOwned returns the session only when userID owns it.
func (r *SessionRepo) GetOwned(ctx context.Context, userID, id string) (*models.ChatSession, error) {
	return r.getOwned(ctx, r.db.DB, userID, id)
}

func (r *SessionRepo) GetOwnedTx(ctx context.Context, tx *sql.Tx, userID, id string) (*models.ChatSession, error) {
	return r.getOwned(ctx, tx, userID, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SessionRepo) getOwned(ctx context.Context, q queryRower, userID, id string) (*models.ChatSession, error) {
	row := q.QueryRowContext(ctx, r.db.q(`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = ? AND user_id = ?`), id, userID)
	var s models.ChatSession
	if err := scanSession(row, &s); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// OwnerTx returns the owner of id regardless of who asks.
func (r *SessionRepo) OwnerTx(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var owner string
	err := tx.QueryRowContext(ctx, r.db.q(`SELECT user_id FROM chat_sessions WHERE id = ?`), id).Scan(&owner)
	return owner, notFound(err)
}

func (r *SessionRepo) InsertTx(ctx context.Context, tx *sql.Tx, s *models.ChatSession) error {
	_, err := tx.ExecContext(ctx, r.db.q(`
		INSERT INTO chat_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), s.ID, s.UserID, s.Topic, s.MemoryPrompt, s.LastSummarizeIndex, nullableInt(s.ClearContextIndex),
		s.MaskConfig, s.TokenCount, s.WordCount, s.CharCount, s.LastUpdate, s.CreatedAt)
	return err
}

func (r *SessionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s *models.ChatSession) error {
	res, err := tx.ExecContext(ctx, r.db.q(`
		UPDATE chat_sessions SET
			topic = ?, memory_prompt = ?, last_summarize_index = ?, clear_context_index = ?,
			mask_config = ?, token_count = ?, word_count = ?, char_count = ?, last_update = ?
		WHERE id = ? AND user_id = ?
	`), s.Topic, s.MemoryPrompt, s.LastSummarizeIndex, nullableInt(s.ClearContextIndex),
		s.MaskConfig, s.TokenCount, s.WordCount, s.CharCount, s.LastUpdate, s.ID, s.UserID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *SessionRepo) TouchTx(ctx context.Context, tx *sql.Tx, id string, at int64) error {
	_, err := tx.ExecContext(ctx, r.db.q(`UPDATE chat_sessions SET last_update = ? WHERE id = ?`), at, id)
	return err
}

// DeleteOwnedTx removes the session and its messages.
func (r *SessionRepo) DeleteOwnedTx(ctx context.Context, tx *sql.Tx, userID, id string) error {
	if _, err := r.getOwned(ctx, tx, userID, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.db.q(`DELETE FROM chat_messages WHERE session_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.db.q(`DELETE FROM chat_sessions WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// DeleteByUserTx removes every session of a user with their messages.
func (r *SessionRepo) DeleteByUserTx(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, r.db.q(`
		DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE user_id = ?)
	`), userID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, r.db.q(`DELETE FROM chat_sessions WHERE user_id = ?`), userID)
	return err
}

func scanSession(row scanner, s *models.ChatSession, extra ...any) error {
	var cci sql.NullInt64
	dest := []any{&s.ID, &s.UserID, &s.Topic, &s.MemoryPrompt, &s.LastSummarizeIndex, &cci,
		&s.MaskConfig, &s.TokenCount, &s.WordCount, &s.CharCount, &s.LastUpdate, &s.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	if cci.Valid {
		v := int(cci.Int64)
		s.ClearContextIndex = &v
	}
	return nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
