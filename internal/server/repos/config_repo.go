package repos

import (
	"context"
	"database/sql"
)

// ConfigRepo stores server-wide switches such as ALLOW_REGISTER.
type ConfigRepo struct {
	db *DB
}

func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

func (r *ConfigRepo) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.db.QueryRowContext(ctx, r.db.q(`SELECT config_value FROM system_config WHERE config_key = ?`), key).Scan(&v)
	return v, notFound(err)
}

func (r *ConfigRepo) Set(ctx context.Context, key, value string, at int64) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, r.db.q(`UPDATE system_config SET config_value = ?, updated_at = ? WHERE config_key = ?`), value, at, key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, r.db.q(`INSERT INTO system_config (config_key, config_value, updated_at) VALUES (?, ?, ?)`), key, value, at)
		return err
	})
}
