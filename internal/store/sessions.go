package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateUser inserts a user row and returns its id.
func (t *Tx) CreateUser(ctx context.Context, tier string) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO users (tier) VALUES ($1) RETURNING id`, tier,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// CreateSession inserts a session row with an app-generated id.
func (t *Tx) CreateSession(ctx context.Context, id, userID string, maxDurationSec int, policyVersion, modelVersion string) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, max_duration_sec, policy_version, model_version)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, userID, maxDurationSec, policyVersion, modelVersion,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// LockSession takes a row lock on the session for the rest of the
// transaction, serializing concurrent turn starts. Returns false when
// the session does not exist.
func (t *Tx) LockSession(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock session: %w", err)
	}
	return true, nil
}

// GetSessionTiming computes elapsed/remaining against the database
// clock. Returns found=false when the session does not exist.
func (t *Tx) GetSessionTiming(ctx context.Context, sessionID string) (SessionTiming, bool, error) {
	var timing SessionTiming
	err := t.tx.QueryRowContext(ctx, `
		SELECT
		  status,
		  max_duration_sec,
		  started_at,
		  extract(epoch FROM (now() - started_at))::int AS elapsed_sec,
		  greatest(max_duration_sec - extract(epoch FROM (now() - started_at))::int, 0) AS remaining_sec
		FROM sessions
		WHERE id = $1
	`, sessionID).Scan(
		&timing.Status, &timing.MaxDurationSec, &timing.StartedAt,
		&timing.ElapsedSec, &timing.RemainingSec,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionTiming{}, false, nil
	}
	if err != nil {
		return SessionTiming{}, false, fmt.Errorf("get session timing: %w", err)
	}
	return timing, true, nil
}

// GetSessionUserID resolves the owning user.
func (t *Tx) GetSessionUserID(ctx context.Context, sessionID string) (string, bool, error) {
	var userID string
	err := t.tx.QueryRowContext(ctx,
		`SELECT user_id FROM sessions WHERE id = $1`, sessionID,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session user: %w", err)
	}
	return userID, true, nil
}

// EndSession marks the session ended. Idempotent: a no-op when the
// session is already ended.
func (t *Tx) EndSession(ctx context.Context, sessionID string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE sessions SET status = 'ended', ended_at = now()
		 WHERE id = $1 AND status <> 'ended'`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
