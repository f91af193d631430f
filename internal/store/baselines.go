package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anchorhq/anchor/internal/baseline"
)

// GetUserBaseline loads the user's EMA state. found=false means the
// baseline will be initialized lazily from the next observation.
func (t *Tx) GetUserBaseline(ctx context.Context, userID string) (baseline.State, bool, error) {
	var state baseline.State
	err := t.tx.QueryRowContext(ctx, `
		SELECT
		  valence_mean, valence_var,
		  arousal_mean, arousal_var,
		  speech_rate_mean, speech_rate_var,
		  pause_ratio_mean, pause_ratio_var
		FROM user_baselines
		WHERE user_id = $1
	`, userID).Scan(
		&state.Valence.Mean, &state.Valence.Var,
		&state.Arousal.Mean, &state.Arousal.Var,
		&state.SpeechRate.Mean, &state.SpeechRate.Var,
		&state.PauseRatio.Mean, &state.PauseRatio.Var,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return baseline.State{}, false, nil
	}
	if err != nil {
		return baseline.State{}, false, fmt.Errorf("get baseline: %w", err)
	}
	return state, true, nil
}

// UpsertUserBaseline writes the full EMA state, one row per user.
func (t *Tx) UpsertUserBaseline(ctx context.Context, userID string, state baseline.State) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_baselines (
		  user_id,
		  valence_mean, valence_var,
		  arousal_mean, arousal_var,
		  speech_rate_mean, speech_rate_var,
		  pause_ratio_mean, pause_ratio_var,
		  updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (user_id) DO UPDATE SET
		  valence_mean = excluded.valence_mean,
		  valence_var = excluded.valence_var,
		  arousal_mean = excluded.arousal_mean,
		  arousal_var = excluded.arousal_var,
		  speech_rate_mean = excluded.speech_rate_mean,
		  speech_rate_var = excluded.speech_rate_var,
		  pause_ratio_mean = excluded.pause_ratio_mean,
		  pause_ratio_var = excluded.pause_ratio_var,
		  updated_at = now()
	`, userID,
		state.Valence.Mean, state.Valence.Var,
		state.Arousal.Mean, state.Arousal.Var,
		state.SpeechRate.Mean, state.SpeechRate.Var,
		state.PauseRatio.Mean, state.PauseRatio.Var,
	)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// InsertBaselineEvent appends the update's diagnostic payload,
// append-only, never mutated.
func (t *Tx) InsertBaselineEvent(ctx context.Context, userID, sessionID string, ev *baseline.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal baseline event: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO baseline_events (user_id, session_id, data)
		VALUES ($1, $2, $3)
	`, userID, sessionID, data)
	if err != nil {
		return fmt.Errorf("insert baseline event: %w", err)
	}
	return nil
}
