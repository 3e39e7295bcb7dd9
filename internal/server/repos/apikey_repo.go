package repos

import (
	"context"

	"github.com/xiaoshi569/nextchat/internal/server/models"
)

const apiKeyColumns = `id, provider, name, encrypted_key, base_url, priority, is_active, created_at, updated_at`

type APIKeyRepo struct {
	db *DB
}

func NewAPIKeyRepo(db *DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

// List orders by priority, highest first.
func (r *APIKeyRepo) List(ctx context.Context) ([]models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY priority DESC, created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.APIKey, 0)
	for rows.Next() {
		var k models.APIKey
		if err := scanAPIKey(rows, &k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *APIKeyRepo) Get(ctx context.Context, id string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, r.db.q(`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`), id)
	var k models.APIKey
	if err := scanAPIKey(row, &k); err != nil {
		return nil, notFound(err)
	}
	return &k, nil
}

func (r *APIKeyRepo) Insert(ctx context.Context, k *models.APIKey) error {
	_, err := r.db.ExecContext(ctx, r.db.q(`
		INSERT INTO api_keys (`+apiKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), k.ID, k.Provider, k.Name, k.EncryptedKey, k.BaseURL, k.Priority, boolToInt(k.IsActive), k.CreatedAt, k.UpdatedAt)
	return err
}

func (r *APIKeyRepo) Update(ctx context.Context, k *models.APIKey) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`
		UPDATE api_keys SET name = ?, encrypted_key = ?, base_url = ?, priority = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`), k.Name, k.EncryptedKey, k.BaseURL, k.Priority, boolToInt(k.IsActive), k.UpdatedAt, k.ID)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *APIKeyRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.q(`DELETE FROM api_keys WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func scanAPIKey(row scanner, k *models.APIKey) error {
	var active int
	if err := row.Scan(&k.ID, &k.Provider, &k.Name, &k.EncryptedKey, &k.BaseURL, &k.Priority, &active, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return err
	}
	k.IsActive = active != 0
	return nil
}
