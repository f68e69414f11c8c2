package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
)

// SQLBackend stores user-durable state in a user_state table. Works against
// Postgres and SQLite; both honor the ON CONFLICT upsert.
type SQLBackend struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewSQLBackend(db *sqlx.DB, logger *zap.Logger) *SQLBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLBackend{db: db, logger: logger}
}

// Schema is applied at startup. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS user_state (
    user_id    TEXT NOT NULL,
    state_key  TEXT NOT NULL,
    payload    TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, state_key)
);`

// Migrate creates the user_state table if missing.
func (b *SQLBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("state: migrate user_state: %w", err)
	}
	return nil
}

// PutUserValue upserts one durable slot for a reader.
func (b *SQLBackend) PutUserValue(ctx context.Context, userID string, key Key, res models.PhaseResult) error {
	if userID == "" {
		return errors.New("state: user id required for durable write")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("state: marshal %s: %w", key, err)
	}

	query := b.db.Rebind(`
		INSERT INTO user_state (user_id, state_key, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, state_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`)
	if _, err := b.db.ExecContext(ctx, query, userID, string(key), string(payload), time.Now().UTC()); err != nil {
		return fmt.Errorf("state: upsert %s for user %s: %w", key, userID, err)
	}

	b.logger.Debug("Durable state written",
		zap.String("user_id", userID),
		zap.String("key", string(key)),
	)
	return nil
}

// GetUserValue reads one durable slot. A missing row is not an error.
func (b *SQLBackend) GetUserValue(ctx context.Context, userID string, key Key) (models.PhaseResult, bool, error) {
	if userID == "" {
		return models.PhaseResult{}, false, nil
	}

	var payload string
	query := b.db.Rebind(`SELECT payload FROM user_state WHERE user_id = ? AND state_key = ?`)
	err := b.db.GetContext(ctx, &payload, query, userID, string(key))
	if errors.Is(err, sql.ErrNoRows) {
		return models.PhaseResult{}, false, nil
	}
	if err != nil {
		return models.PhaseResult{}, false, fmt.Errorf("state: read %s for user %s: %w", key, userID, err)
	}

	var res models.PhaseResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return models.PhaseResult{}, false, fmt.Errorf("state: decode %s for user %s: %w", key, userID, err)
	}
	return res, true, nil
}
