package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EnsureUserSettings creates the settings row with defaults if missing.
// Safe to call any time.
func (t *Tx) EnsureUserSettings(ctx context.Context, userID string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_settings (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// GetUserSettings reads the per-user flags. A missing row reads as
// opted out, with transcript storage on.
func (t *Tx) GetUserSettings(ctx context.Context, userID string) (Settings, error) {
	var s Settings
	err := t.tx.QueryRowContext(ctx, `
		SELECT personalization_opt_in, baseline_opt_in, store_transcripts, no_transcript_mode
		FROM user_settings
		WHERE user_id = $1
	`, userID).Scan(&s.PersonalizationOptIn, &s.BaselineOptIn, &s.StoreTranscripts, &s.NoTranscriptMode)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{StoreTranscripts: true}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}
