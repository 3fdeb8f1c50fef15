package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type preferenceRepository struct {
	db *sql.DB
}

// NewPreferenceRepository создаёт PostgreSQL-реализацию PreferenceStore.
func NewPreferenceRepository(store *Store) domain.PreferenceStore {
	return &preferenceRepository{db: store.DB()}
}

func (r *preferenceRepository) Get(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrPreferenceKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM storefront_preferences WHERE key = $1
	`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrPreferenceNotFound
		}
		return "", wrapQueryError("get preference", err)
	}
	return value, nil
}

func (r *preferenceRepository) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrPreferenceKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO storefront_preferences (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return wrapQueryError("set preference", err)
	}
	return nil
}

func (r *preferenceRepository) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrPreferenceKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM storefront_preferences WHERE key = $1`, key)
	if err != nil {
		return wrapQueryError("delete preference", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete preference rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPreferenceNotFound
	}
	return nil
}

func (r *preferenceRepository) List(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM storefront_preferences ORDER BY key`)
	if err != nil {
		return nil, wrapQueryError("list preferences", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preferences: %w", err)
	}
	return result, nil
}

func wrapQueryError(op string, err error) error {
	if isUndefinedTable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrSchemaMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ domain.PreferenceStore = (*preferenceRepository)(nil)
