package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anchorhq/anchor/internal/safety"
)

// InsertSafetyEvent records one safety decision for a turn.
func (t *Tx) InsertSafetyEvent(ctx context.Context, in SafetyEventInsert) error {
	classification, err := json.Marshal(in.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO safety_events (
		  session_id, turn_id, stage, action, category, severity,
		  classification, fallback_used, policy_version, model_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, in.SessionID, in.TurnID, in.Stage, in.Action, in.Category, in.Severity,
		classification, in.FallbackUsed, in.PolicyVersion, in.ModelVersion)
	if err != nil {
		return fmt.Errorf("insert safety event: %w", err)
	}
	return nil
}

// GetLatestInputSafety returns the most recent input-stage safety
// classification for a turn, used to replay finalize results.
func (t *Tx) GetLatestInputSafety(ctx context.Context, sessionID, turnID string) (safety.Result, bool, error) {
	var raw []byte
	err := t.tx.QueryRowContext(ctx, `
		SELECT classification FROM safety_events
		WHERE session_id = $1 AND turn_id = $2 AND stage = 'input'
		ORDER BY created_at DESC
		LIMIT 1
	`, sessionID, turnID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return safety.Result{}, false, nil
	}
	if err != nil {
		return safety.Result{}, false, fmt.Errorf("get input safety: %w", err)
	}

	var res safety.Result
	if err = json.Unmarshal(raw, &res); err != nil {
		return safety.Result{}, false, fmt.Errorf("decode input safety: %w", err)
	}
	return res, true, nil
}
