package pipeline

import (
	"context"

	"github.com/anchorhq/anchor/internal/baseline"
	"github.com/anchorhq/anchor/internal/safety"
	"github.com/anchorhq/anchor/internal/store"
)

// Tx is the transactional store surface one pipeline operation runs
// against. *store.Tx implements it; tests substitute an in-memory fake.
type Tx interface {
	// Sessions.
	CreateUser(ctx context.Context, tier string) (string, error)
	CreateSession(ctx context.Context, id, userID string, maxDurationSec int, policyVersion, modelVersion string) error
	LockSession(ctx context.Context, sessionID string) (bool, error)
	GetSessionTiming(ctx context.Context, sessionID string) (store.SessionTiming, bool, error)
	GetSessionUserID(ctx context.Context, sessionID string) (string, bool, error)
	EndSession(ctx context.Context, sessionID string) error

	// Settings.
	EnsureUserSettings(ctx context.Context, userID string) error
	GetUserSettings(ctx context.Context, userID string) (store.Settings, error)

	// Turns.
	InsertTurn(ctx context.Context, sessionID string, requestID *string) (string, int, error)
	TurnBelongsToSession(ctx context.Context, turnID, sessionID string) (bool, error)
	ClaimTurn(ctx context.Context, sessionID, turnID string) (bool, error)
	SetTurnTiming(ctx context.Context, turnID string, elapsedSec, remainingSec int, gated bool) error
	SetTurnTranscript(ctx context.Context, turnID string, transcript *string, confidence *float64) error
	SetTurnIngestMeta(ctx context.Context, turnID string, meta store.IngestMeta) error
	GetTurnTranscript(ctx context.Context, turnID string) (string, error)

	// Utterances.
	InsertUtterance(ctx context.Context, sessionID string, turnID *string, role, text string, chunkIndex *int) (string, error)
	UpsertUserChunk(ctx context.Context, sessionID, turnID string, chunkIndex int, text string, confidence *float64) (string, int, error)
	ListUserChunks(ctx context.Context, sessionID, turnID string) ([]store.Chunk, error)
	GetCanonicalUserUtterance(ctx context.Context, sessionID, turnID string) (string, bool, error)
	SetUtteranceScores(ctx context.Context, utteranceID string, valence, arousal, confidence, extremeness float64) error

	// Assistant messages.
	InsertAssistantMessage(ctx context.Context, in store.AssistantMessageInsert) (string, error)
	GetAssistantForTurn(ctx context.Context, sessionID, turnID string) (store.AssistantMessage, bool, error)

	// Audit trail.
	AuditEventExists(ctx context.Context, sessionID string, turnID *string, eventType string) (bool, error)
	InsertAudit(ctx context.Context, sessionID string, turnID *string, eventType string, payload any, policyVersion, modelVersion string) error

	// Baselines.
	GetUserBaseline(ctx context.Context, userID string) (baseline.State, bool, error)
	UpsertUserBaseline(ctx context.Context, userID string, state baseline.State) error
	InsertBaselineEvent(ctx context.Context, userID, sessionID string, ev *baseline.Event) error

	// Safety events.
	InsertSafetyEvent(ctx context.Context, in store.SafetyEventInsert) error
	GetLatestInputSafety(ctx context.Context, sessionID, turnID string) (safety.Result, bool, error)

	// Daily trends.
	UpsertDailyTrend(ctx context.Context, userID string, valence, arousal, confidence, extremeness float64) error
	ListDailyTrends(ctx context.Context, userID string, days int) ([]store.TrendPoint, error)
}

// DB runs pipeline operations in transactions.
type DB interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

type pgDB struct {
	s *store.Store
}

// NewDB adapts the PostgreSQL store to the pipeline's DB interface.
func NewDB(s *store.Store) DB {
	return pgDB{s: s}
}

func (d pgDB) WithTx(ctx context.Context, fn func(Tx) error) error {
	return d.s.WithTx(ctx, func(tx *store.Tx) error { return fn(tx) })
}
