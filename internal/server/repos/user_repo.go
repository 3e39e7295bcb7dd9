package repos

import (
	"context"
	"database/sql"

	"github.com/xiaoshi569/nextchat/internal/server/models"
)

const userColumns = `id, email, username, password_hash, role, is_active, created_at, updated_at`

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *UserRepo) getBy(ctx context.Context, column, value string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, r.db.q(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`), value)
	var u models.User
	if err := scanUser(row, &u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ExistsEmailOrUsername reports whether either value is taken.
func (r *UserRepo) ExistsEmailOrUsername(ctx context.Context, email, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.db.q(`SELECT COUNT(*) FROM users WHERE email = ? OR username = ?`), email, username).Scan(&n)
	return n > 0, err
}

func (r *UserRepo) Insert(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, r.db.q(`
		INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), u.ID, u.Email, u.Username, u.PasswordHash, u.Role, boolToInt(u.IsActive), u.CreatedAt, u.UpdatedAt)
	return err
}

// ListWithCounts returns every user, newest first, with session counts.
func (r *UserRepo) ListWithCounts(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`,
			(SELECT COUNT(*) FROM chat_sessions s WHERE s.user_id = users.id)
		FROM users ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := scanUser(rows, &u, &u.SessionCount); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) SetActive(ctx context.Context, id string, active bool, at int64) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`), boolToInt(active), at, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *UserRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, r.db.q(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func scanUser(row scanner, u *models.User, extra ...any) error {
	var active int
	dest := []any{&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &active, &u.CreatedAt, &u.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	u.IsActive = active != 0
	return nil
}
