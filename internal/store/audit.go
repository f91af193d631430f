package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// AuditEventExists reports whether a milestone entry already exists for
// (session, turn, event_type). A nil turnID matches session-level
// entries only.
func (t *Tx) AuditEventExists(ctx context.Context, sessionID string, turnID *string, eventType string) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT count(*) FROM audit_logs
		WHERE session_id = $1
		  AND turn_id IS NOT DISTINCT FROM $2
		  AND event_type = $3
	`, sessionID, turnID, eventType).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("audit exists: %w", err)
	}
	return count > 0, nil
}

// InsertAudit appends one audit entry. The unique milestone index makes
// the insert a no-op on replay, belt and braces with the exists check.
func (t *Tx) InsertAudit(ctx context.Context, sessionID string, turnID *string, eventType string, payload any, policyVersion, modelVersion string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO audit_logs (session_id, turn_id, event_type, data, policy_version, model_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, COALESCE(turn_id, '00000000-0000-0000-0000-000000000000'::uuid), event_type)
		DO NOTHING
	`, sessionID, turnID, eventType, data, policyVersion, modelVersion)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}
