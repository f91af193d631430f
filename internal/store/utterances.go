package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// nextUtteranceSeq allocates the per-session monotonic utterance
// sequence inside the current transaction.
func (t *Tx) nextUtteranceSeq(ctx context.Context, sessionID string) (int, error) {
	var seq int
	err := t.tx.QueryRowContext(ctx,
		`SELECT coalesce(max(seq) + 1, 0) FROM utterances WHERE session_id = $1`, sessionID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next utterance seq: %w", err)
	}
	return seq, nil
}

// InsertUtterance appends one utterance. A nil chunkIndex marks the
// canonical stitched utterance; chunk rows carry their index.
func (t *Tx) InsertUtterance(ctx context.Context, sessionID string, turnID *string, role, text string, chunkIndex *int) (string, error) {
	seq, err := t.nextUtteranceSeq(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var id string
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO utterances (session_id, turn_id, role, seq, chunk_index, text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, sessionID, turnID, role, seq, chunkIndex, text).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert utterance: %w", err)
	}
	return id, nil
}

// UpsertUserChunk writes a chunk idempotently: a chunk_index already
// present for the turn is overwritten in place, otherwise a fresh row
// is inserted with a new sequence number. Returns (utterance id, seq).
func (t *Tx) UpsertUserChunk(ctx context.Context, sessionID, turnID string, chunkIndex int, text string, confidence *float64) (string, int, error) {
	var id string
	var seq int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE utterances
		SET text = $1, chunk_confidence = $2
		WHERE session_id = $3 AND turn_id = $4 AND role = 'user' AND chunk_index = $5
		RETURNING id, seq
	`, text, confidence, sessionID, turnID, chunkIndex).Scan(&id, &seq)
	if err == nil {
		return id, seq, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("update chunk: %w", err)
	}

	seq, err = t.nextUtteranceSeq(ctx, sessionID)
	if err != nil {
		return "", 0, err
	}
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO utterances (session_id, turn_id, role, seq, chunk_index, chunk_confidence, text)
		VALUES ($1, $2, 'user', $3, $4, $5, $6)
		RETURNING id
	`, sessionID, turnID, seq, chunkIndex, confidence, text).Scan(&id)
	if err != nil {
		return "", 0, fmt.Errorf("insert chunk: %w", err)
	}
	return id, seq, nil
}

// ListUserChunks returns the turn's chunk rows ordered by chunk_index.
func (t *Tx) ListUserChunks(ctx context.Context, sessionID, turnID string) ([]Chunk, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, chunk_index, text, chunk_confidence
		FROM utterances
		WHERE session_id = $1 AND turn_id = $2 AND role = 'user' AND chunk_index IS NOT NULL
		ORDER BY chunk_index ASC
	`, sessionID, turnID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var conf sql.NullFloat64
		if err = rows.Scan(&c.ID, &c.ChunkIndex, &c.Text, &conf); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if conf.Valid {
			c.Confidence = &conf.Float64
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// GetCanonicalUserUtterance finds the stitched user utterance created
// at finalize time (chunk_index null), if one exists.
func (t *Tx) GetCanonicalUserUtterance(ctx context.Context, sessionID, turnID string) (string, bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM utterances
		WHERE session_id = $1 AND turn_id = $2 AND role = 'user' AND chunk_index IS NULL
		ORDER BY created_at ASC
		LIMIT 1
	`, sessionID, turnID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get canonical utterance: %w", err)
	}
	return id, true, nil
}

// SetUtteranceScores stores the derived emotion scores.
func (t *Tx) SetUtteranceScores(ctx context.Context, utteranceID string, valence, arousal, confidence, extremeness float64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE utterances
		SET valence = $1, arousal = $2, confidence = $3, extremeness = $4
		WHERE id = $5
	`, valence, arousal, confidence, extremeness, utteranceID)
	if err != nil {
		return fmt.Errorf("set utterance scores: %w", err)
	}
	return nil
}
