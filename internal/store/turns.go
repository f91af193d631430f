package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertTurn allocates the next turn_index for the session and inserts
// the turn. Callers must hold the session row lock (LockSession) so
// concurrent starts never allocate the same index.
func (t *Tx) InsertTurn(ctx context.Context, sessionID string, requestID *string) (string, int, error) {
	var id string
	var index int
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO turns (session_id, turn_index, request_id)
		VALUES (
		  $1,
		  (SELECT coalesce(max(turn_index), -1) + 1 FROM turns WHERE session_id = $1),
		  $2
		)
		RETURNING id, turn_index
	`, sessionID, requestID).Scan(&id, &index)
	if err != nil {
		return "", 0, fmt.Errorf("insert turn: %w", err)
	}
	return id, index, nil
}

// TurnBelongsToSession checks turn ownership.
func (t *Tx) TurnBelongsToSession(ctx context.Context, turnID, sessionID string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM turns WHERE id = $1 AND session_id = $2`, turnID, sessionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("turn ownership check: %w", err)
	}
	return true, nil
}

// ClaimTurn atomically stamps finalized_at if the turn is still open.
// Returns false when another finalize already claimed the turn.
func (t *Tx) ClaimTurn(ctx context.Context, sessionID, turnID string) (bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		UPDATE turns SET finalized_at = now()
		WHERE id = $1 AND session_id = $2 AND finalized_at IS NULL
		RETURNING id
	`, turnID, sessionID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim turn: %w", err)
	}
	return true, nil
}

// SetTurnTiming stamps the session timing snapshot on the turn.
func (t *Tx) SetTurnTiming(ctx context.Context, turnID string, elapsedSec, remainingSec int, gated bool) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE turns
		SET elapsed_session_sec = $1, remaining_session_sec = $2, gated = $3
		WHERE id = $4
	`, elapsedSec, remainingSec, gated, turnID)
	if err != nil {
		return fmt.Errorf("set turn timing: %w", err)
	}
	return nil
}

// SetTurnTranscript stores the stitched transcript and its quality
// confidence on the turn.
func (t *Tx) SetTurnTranscript(ctx context.Context, turnID string, transcript *string, confidence *float64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE turns SET transcript = $1, transcript_confidence = $2 WHERE id = $3
	`, transcript, confidence, turnID)
	if err != nil {
		return fmt.Errorf("set turn transcript: %w", err)
	}
	return nil
}

// SetTurnIngestMeta stamps the single-payload ingest metadata on a
// turn, including the transcript when the privacy flags allow storage.
func (t *Tx) SetTurnIngestMeta(ctx context.Context, turnID string, meta IngestMeta) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE turns
		SET input_mode = $1,
		    transcript_confidence = $2,
		    duration_ms = $3,
		    speech_rate = $4,
		    pause_ratio = $5,
		    stt_provider_used = $6,
		    fallback_used = $7,
		    transcript = $8
		WHERE id = $9
	`, meta.InputMode, meta.Confidence, meta.DurationMs, meta.SpeechRate,
		meta.PauseRatio, meta.STTProviderUsed, meta.FallbackUsed, meta.Transcript, turnID)
	if err != nil {
		return fmt.Errorf("set turn ingest meta: %w", err)
	}
	return nil
}

// GetTurnTranscript returns the stored transcript, empty when unset.
func (t *Tx) GetTurnTranscript(ctx context.Context, turnID string) (string, error) {
	var transcript string
	err := t.tx.QueryRowContext(ctx,
		`SELECT coalesce(transcript, '') FROM turns WHERE id = $1`, turnID,
	).Scan(&transcript)
	if err != nil {
		return "", fmt.Errorf("get turn transcript: %w", err)
	}
	return transcript, nil
}
