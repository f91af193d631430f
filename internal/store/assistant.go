package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertAssistantMessage records the durable assistant reply.
func (t *Tx) InsertAssistantMessage(ctx context.Context, in AssistantMessageInsert) (string, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO assistant_messages (
		  session_id, turn_id, draft_text, final_text,
		  fallback_used, fallback_type, policy_version, model_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, in.SessionID, in.TurnID, in.DraftText, in.FinalText,
		in.FallbackUsed, in.FallbackType, in.PolicyVersion, in.ModelVersion).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert assistant message: %w", err)
	}
	return id, nil
}

// GetAssistantForTurn returns the first assistant message recorded for
// the turn, the one a replayed finalize must return unchanged.
func (t *Tx) GetAssistantForTurn(ctx context.Context, sessionID, turnID string) (AssistantMessage, bool, error) {
	var msg AssistantMessage
	var fallbackType sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		SELECT final_text, fallback_used, fallback_type
		FROM assistant_messages
		WHERE session_id = $1 AND turn_id = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, sessionID, turnID).Scan(&msg.FinalText, &msg.FallbackUsed, &fallbackType)
	if errors.Is(err, sql.ErrNoRows) {
		return AssistantMessage{}, false, nil
	}
	if err != nil {
		return AssistantMessage{}, false, fmt.Errorf("get assistant message: %w", err)
	}
	if fallbackType.Valid {
		msg.FallbackType = &fallbackType.String
	}
	return msg, true, nil
}
