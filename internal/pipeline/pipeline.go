// Package pipeline orchestrates one conversational turn: session
// gating, chunk accumulation, finalize-once claiming, scoring, safety,
// baseline updates, response generation, and the audit trail. Every
// operation runs inside one store transaction.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/internal/baseline"
	"github.com/anchorhq/anchor/internal/metrics"
	"github.com/anchorhq/anchor/internal/prompts"
	"github.com/anchorhq/anchor/internal/respond"
	"github.com/anchorhq/anchor/internal/safety"
	"github.com/anchorhq/anchor/internal/scoring"
	"github.com/anchorhq/anchor/internal/store"
)

// Session duration budgets per tier, in seconds.
const (
	freeTierDurationSec = 300
	paidTierDurationSec = 600
)

// Config carries the version tags stamped on every persisted record
// and the baseline tuning knobs.
type Config struct {
	PolicyVersion string
	ModelVersion  string
	Baseline      baseline.Config
}

// Pipeline composes the store and the external adapters. Constructed
// once at process start; collaborators are injected, never globals.
type Pipeline struct {
	db        DB
	scorer    *scoring.Adapter
	responder *respond.Responder
	cfg       Config
}

// New creates the turn pipeline.
func New(db DB, scorer *scoring.Adapter, responder *respond.Responder, cfg Config) *Pipeline {
	return &Pipeline{db: db, scorer: scorer, responder: responder, cfg: cfg}
}

// SessionInfo is returned by CreateSession.
type SessionInfo struct {
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	Tier           string `json:"tier"`
	MaxDurationSec int    `json:"max_duration_sec"`
}

// TurnInfo is returned by StartTurn.
type TurnInfo struct {
	TurnID    string `json:"turn_id"`
	TurnIndex int    `json:"turn_index"`
}

// Analysis is the optional diagnostics bundle attached to a finalize
// result.
type Analysis struct {
	BaselineUpdate *baseline.Event `json:"baseline_update,omitempty"`
	Mode           string          `json:"mode,omitempty"`
	ResponseSource string          `json:"response_source,omitempty"`
	ResponseError  string          `json:"response_error,omitempty"`
}

// Result is the outcome of a finalized or ingested turn. Replayed
// finalizes return the stored result with a nil Analysis.
type Result struct {
	TurnID        string        `json:"turn_id"`
	Transcript    string        `json:"transcript"`
	AssistantText string        `json:"assistant_text"`
	Safety        safety.Result `json:"input_safety"`
	FallbackUsed  bool          `json:"fallback_used"`
	Analysis      *Analysis     `json:"analysis,omitempty"`

	// endedActiveSession records that the gate branch ended a session
	// that was still active, so the caller can adjust the sessions
	// gauge after the transaction commits.
	endedActiveSession bool
}

// IngestRequest is a single-payload turn: transcript plus speech
// features, bypassing chunk accumulation.
type IngestRequest struct {
	SessionID            string
	Transcript           string
	TranscriptConfidence *float64
	DurationMs           *int
	SpeechRate           *float64
	PauseRatio           *float64
	STTProvider          string
	FallbackUsed         bool
}

// CreateSession creates a user, settings row, and session with the
// tier's time budget, and audits session_start.
func (p *Pipeline) CreateSession(ctx context.Context, tier string) (SessionInfo, error) {
	if tier != "free" && tier != "paid" {
		return SessionInfo{}, fmt.Errorf("tier must be 'free' or 'paid': %w", ErrInvalidInput)
	}
	maxSec := freeTierDurationSec
	if tier == "paid" {
		maxSec = paidTierDurationSec
	}

	info := SessionInfo{SessionID: uuid.NewString(), Tier: tier, MaxDurationSec: maxSec}
	err := p.db.WithTx(ctx, func(tx Tx) error {
		userID, err := tx.CreateUser(ctx, tier)
		if err != nil {
			return err
		}
		if err = tx.EnsureUserSettings(ctx, userID); err != nil {
			return err
		}
		if err = tx.CreateSession(ctx, info.SessionID, userID, maxSec, p.cfg.PolicyVersion, p.cfg.ModelVersion); err != nil {
			return err
		}
		info.UserID = userID
		return tx.InsertAudit(ctx, info.SessionID, nil, "session_start",
			map[string]any{"tier": tier, "max_duration_sec": maxSec},
			p.cfg.PolicyVersion, p.cfg.ModelVersion)
	})
	if err != nil {
		return SessionInfo{}, err
	}
	metrics.SessionsActive.Inc()
	return info, nil
}

// GetTiming reports session status and elapsed/remaining seconds
// computed against the store's clock.
func (p *Pipeline) GetTiming(ctx context.Context, sessionID string) (store.SessionTiming, error) {
	var timing store.SessionTiming
	err := p.db.WithTx(ctx, func(tx Tx) error {
		t, found, err := tx.GetSessionTiming(ctx, sessionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		timing = t
		return nil
	})
	return timing, err
}

// EndSession ends the session. Idempotent: ending an ended session is
// a no-op. The sessions gauge only moves once the transaction commits.
func (p *Pipeline) EndSession(ctx context.Context, sessionID string) error {
	var wasActive bool
	err := p.db.WithTx(ctx, func(tx Tx) error {
		timing, found, err := tx.GetSessionTiming(ctx, sessionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		if err = tx.EndSession(ctx, sessionID); err != nil {
			return err
		}
		wasActive = timing.Status == "active"
		return p.auditOnce(ctx, tx, sessionID, nil, "session_end",
			map[string]any{"reason": "client_request"})
	})
	if err != nil {
		return err
	}
	if wasActive {
		metrics.SessionsActive.Dec()
	}
	return nil
}

// StartTurn opens a turn with the next per-session index. The session
// row lock serializes concurrent starts so indices stay gapless.
func (p *Pipeline) StartTurn(ctx context.Context, sessionID string) (TurnInfo, error) {
	var info TurnInfo
	err := p.db.WithTx(ctx, func(tx Tx) error {
		found, err := tx.LockSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}

		timing, _, err := tx.GetSessionTiming(ctx, sessionID)
		if err != nil {
			return err
		}

		turnID, turnIndex, err := tx.InsertTurn(ctx, sessionID, nil)
		if err != nil {
			return err
		}
		if err = tx.SetTurnTiming(ctx, turnID, timing.ElapsedSec, timing.RemainingSec, timing.Gated()); err != nil {
			return err
		}

		info = TurnInfo{TurnID: turnID, TurnIndex: turnIndex}
		return p.auditOnce(ctx, tx, sessionID, &turnID, "turn_received",
			map[string]any{"turn_id": turnID, "mode": "chunked"})
	})
	if err != nil {
		return TurnInfo{}, err
	}
	metrics.TurnsStarted.Inc()
	return info, nil
}

// AppendChunk upserts one transcript chunk of an open turn. A repeated
// chunk_index overwrites in place; retransmission is safe. Returns the
// chunk's per-session sequence number.
func (p *Pipeline) AppendChunk(ctx context.Context, sessionID, turnID string, chunkIndex int, text string, confidence *float64) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("chunk text cannot be empty: %w", ErrInvalidInput)
	}

	var seq int
	err := p.db.WithTx(ctx, func(tx Tx) error {
		ok, err := tx.TurnBelongsToSession(ctx, turnID, sessionID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("turn %s not found for session %s: %w", turnID, sessionID, ErrNotFound)
		}
		_, seq, err = tx.UpsertUserChunk(ctx, sessionID, turnID, chunkIndex, text, confidence)
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.ChunksAppended.Inc()
	return seq, nil
}

// FinalizeTurn stitches the turn's chunks and runs the full pipeline:
// scoring, baseline, safety, response, audit. The finalized_at claim
// makes it exactly-once; a losing caller gets the stored result back.
func (p *Pipeline) FinalizeTurn(ctx context.Context, sessionID, turnID string) (Result, error) {
	start := time.Now()
	var res Result
	err := p.db.WithTx(ctx, func(tx Tx) error {
		var err error
		res, err = p.finalizeTx(ctx, tx, sessionID, turnID)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if res.endedActiveSession {
		metrics.SessionsActive.Dec()
	}
	metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

func (p *Pipeline) finalizeTx(ctx context.Context, tx Tx, sessionID, turnID string) (Result, error) {
	ok, err := tx.TurnBelongsToSession(ctx, turnID, sessionID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("turn %s not found for session %s: %w", turnID, sessionID, ErrNotFound)
	}

	claimed, err := tx.ClaimTurn(ctx, sessionID, turnID)
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		return p.replayFinalize(ctx, tx, sessionID, turnID)
	}

	timing, found, err := tx.GetSessionTiming(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	gated := timing.Gated()

	if err = tx.SetTurnTiming(ctx, turnID, timing.ElapsedSec, timing.RemainingSec, gated); err != nil {
		return Result{}, err
	}

	chunks, err := tx.ListUserChunks(ctx, sessionID, turnID)
	if err != nil {
		return Result{}, err
	}
	if len(chunks) == 0 {
		return Result{}, fmt.Errorf("no chunks uploaded for turn %s: %w", turnID, ErrInvalidInput)
	}

	parts := make([]string, 0, len(chunks))
	hints := make([]scoring.ChunkConfidence, 0, len(chunks))
	for _, c := range chunks {
		if txt := strings.TrimSpace(c.Text); txt != "" {
			parts = append(parts, txt)
		}
		hints = append(hints, scoring.ChunkConfidence{Text: c.Text, Confidence: c.Confidence})
	}
	transcript := strings.TrimSpace(strings.Join(parts, " "))
	if transcript == "" {
		return Result{}, fmt.Errorf("final transcript is empty: %w", ErrInvalidInput)
	}

	transcriptConf := TranscriptConfidence(transcript, hints)
	if err = tx.SetTurnTranscript(ctx, turnID, &transcript, &transcriptConf); err != nil {
		return Result{}, err
	}

	// Never put transcript text in the stt_complete payload.
	if err = p.auditOnce(ctx, tx, sessionID, &turnID, "stt_complete", map[string]any{
		"turn_id": turnID, "stt_ms": 0, "confidence": transcriptConf, "chunk_count": len(chunks),
	}); err != nil {
		return Result{}, err
	}

	uttID, found, err := tx.GetCanonicalUserUtterance(ctx, sessionID, turnID)
	if err != nil {
		return Result{}, err
	}
	if !found {
		if uttID, err = tx.InsertUtterance(ctx, sessionID, &turnID, "user", transcript, nil); err != nil {
			return Result{}, err
		}
	}

	scores := p.score(ctx, transcript, hints)
	if err = tx.SetUtteranceScores(ctx, uttID, scores.Valence, scores.Arousal, scores.Confidence, scores.Extremeness); err != nil {
		return Result{}, err
	}
	if err = p.auditScores(ctx, tx, sessionID, turnID, uttID, scores); err != nil {
		return Result{}, err
	}

	ev, err := p.analyzeUser(ctx, tx, sessionID, turnID, scores, &transcriptConf, nil, nil)
	if err != nil {
		return Result{}, err
	}
	analysis := &Analysis{BaselineUpdate: ev}

	if gated {
		return p.gateTurn(ctx, tx, sessionID, turnID, transcript, timing, analysis, "chunked")
	}
	return p.respondTurn(ctx, tx, sessionID, turnID, transcript, scores, ev, analysis, "chunked")
}

// IngestTranscript runs a whole turn from a single transcript payload,
// honoring the user's privacy flags: when transcript storage is off,
// scoring still sees the text in memory but nothing persists it.
func (p *Pipeline) IngestTranscript(ctx context.Context, req IngestRequest) (Result, error) {
	transcript := strings.TrimSpace(req.Transcript)
	if transcript == "" {
		return Result{}, fmt.Errorf("transcript_text cannot be empty: %w", ErrInvalidInput)
	}
	tc := clampPtr01(req.TranscriptConfidence)
	pauseRatio := clampPtr01(req.PauseRatio)

	var res Result
	err := p.db.WithTx(ctx, func(tx Tx) error {
		found, err := tx.LockSession(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", req.SessionID, ErrNotFound)
		}

		timing, _, err := tx.GetSessionTiming(ctx, req.SessionID)
		if err != nil {
			return err
		}
		gated := timing.Gated()

		turnID, _, err := tx.InsertTurn(ctx, req.SessionID, nil)
		if err != nil {
			return err
		}
		if err = tx.SetTurnTiming(ctx, turnID, timing.ElapsedSec, timing.RemainingSec, gated); err != nil {
			return err
		}

		userID, found, err := tx.GetSessionUserID(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s user: %w", req.SessionID, ErrNotFound)
		}
		if err = tx.EnsureUserSettings(ctx, userID); err != nil {
			return err
		}
		settings, err := tx.GetUserSettings(ctx, userID)
		if err != nil {
			return err
		}
		storeTranscript := settings.StoreTranscripts && !settings.NoTranscriptMode

		inputMode := "text"
		if req.STTProvider == "on_device" || req.STTProvider == "self_hosted" {
			inputMode = "voice"
		}
		var stored *string
		if storeTranscript {
			stored = &transcript
		}
		if err = tx.SetTurnIngestMeta(ctx, turnID, store.IngestMeta{
			InputMode:       inputMode,
			Confidence:      tc,
			DurationMs:      req.DurationMs,
			SpeechRate:      req.SpeechRate,
			PauseRatio:      pauseRatio,
			STTProviderUsed: req.STTProvider,
			FallbackUsed:    req.FallbackUsed,
			Transcript:      stored,
		}); err != nil {
			return err
		}

		if err = p.auditOnce(ctx, tx, req.SessionID, &turnID, "turn_received",
			map[string]any{"turn_id": turnID, "mode": "transcript_ingest"}); err != nil {
			return err
		}

		uttText := ""
		if storeTranscript {
			uttText = transcript
		}
		uttID, err := tx.InsertUtterance(ctx, req.SessionID, &turnID, "user", uttText, nil)
		if err != nil {
			return err
		}

		scores := p.score(ctx, transcript, nil)
		if err = tx.SetUtteranceScores(ctx, uttID, scores.Valence, scores.Arousal, scores.Confidence, scores.Extremeness); err != nil {
			return err
		}

		if err = p.auditOnce(ctx, tx, req.SessionID, &turnID, "stt_complete", map[string]any{
			"turn_id": turnID, "provider": req.STTProvider, "fallback_used": req.FallbackUsed,
			"confidence": tc, "duration_ms": req.DurationMs,
		}); err != nil {
			return err
		}
		if err = p.auditScores(ctx, tx, req.SessionID, turnID, uttID, scores); err != nil {
			return err
		}

		// Speech rate convention here is words/sec; the baseline tracks
		// WPM, so only the pause ratio feeds it for now.
		ev, err := p.analyzeUser(ctx, tx, req.SessionID, turnID, scores, tc, nil, pauseRatio)
		if err != nil {
			return err
		}
		analysis := &Analysis{BaselineUpdate: ev}

		if gated {
			res, err = p.gateTurn(ctx, tx, req.SessionID, turnID, transcript, timing, analysis, "transcript_ingest")
			return err
		}
		res, err = p.respondTurn(ctx, tx, req.SessionID, turnID, transcript, scores, ev, analysis, "transcript_ingest")
		if err == nil && req.FallbackUsed {
			res.FallbackUsed = true
		}
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if res.endedActiveSession {
		metrics.SessionsActive.Dec()
	}
	return res, nil
}

// DailyTrends returns the session owner's recent trend buckets, days
// clamped to 1..180.
func (p *Pipeline) DailyTrends(ctx context.Context, sessionID string, days int) ([]store.TrendPoint, error) {
	var points []store.TrendPoint
	err := p.db.WithTx(ctx, func(tx Tx) error {
		userID, found, err := tx.GetSessionUserID(ctx, sessionID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		points, err = tx.ListDailyTrends(ctx, userID, days)
		return err
	})
	return points, err
}

// replayFinalize serves a finalize whose claim was lost: return the
// previously computed result byte for byte, or flag the torn turn.
func (p *Pipeline) replayFinalize(ctx context.Context, tx Tx, sessionID, turnID string) (Result, error) {
	existing, found, err := tx.GetAssistantForTurn(ctx, sessionID, turnID)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{}, fmt.Errorf("turn %s finalized but assistant message missing: %w", turnID, ErrConsistency)
	}

	transcript, err := tx.GetTurnTranscript(ctx, turnID)
	if err != nil {
		return Result{}, err
	}
	cls, found, err := tx.GetLatestInputSafety(ctx, sessionID, turnID)
	if err != nil {
		return Result{}, err
	}
	if !found {
		cls = safety.Result{Label: safety.LabelAllow, Reasons: []string{}, Meta: map[string]string{}}
	}

	metrics.FinalizeReplays.Inc()
	return Result{
		TurnID:        turnID,
		Transcript:    transcript,
		AssistantText: existing.FinalText,
		Safety:        cls,
		FallbackUsed:  existing.FallbackUsed,
	}, nil
}

// analyzeUser runs the opt-in baseline update and daily-trend upsert.
// Returns the baseline event, nil when opted out or nothing observed.
func (p *Pipeline) analyzeUser(ctx context.Context, tx Tx, sessionID, turnID string, scores scoring.Scores, transcriptConf, speechRate, pauseRatio *float64) (*baseline.Event, error) {
	userID, found, err := tx.GetSessionUserID(ctx, sessionID)
	if err != nil || !found {
		return nil, err
	}
	if err = tx.EnsureUserSettings(ctx, userID); err != nil {
		return nil, err
	}
	settings, err := tx.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !settings.BaselineOptIn {
		return nil, nil
	}

	prev, _, err := tx.GetUserBaseline(ctx, userID)
	if err != nil {
		return nil, err
	}

	next, ev := baseline.Update(p.cfg.Baseline, prev, baseline.Observation{
		Valence:              &scores.Valence,
		Arousal:              &scores.Arousal,
		Confidence:           &scores.Confidence,
		TranscriptConfidence: transcriptConf,
		SpeechRate:           speechRate,
		PauseRatio:           pauseRatio,
	})
	if ev != nil {
		if err = tx.UpsertUserBaseline(ctx, userID, next); err != nil {
			return nil, err
		}
		if err = tx.InsertBaselineEvent(ctx, userID, sessionID, ev); err != nil {
			return nil, err
		}
		if err = p.auditOnce(ctx, tx, sessionID, &turnID, "baseline_updated",
			map[string]any{"turn_id": turnID, "updated": true}); err != nil {
			return nil, err
		}
		metrics.BaselineUpdates.Inc()
		if ev.Spike.IsSpike {
			metrics.BaselineSpikes.Inc()
		}
	}

	if err = tx.UpsertDailyTrend(ctx, userID, scores.Valence, scores.Arousal, scores.Confidence, scores.Extremeness); err != nil {
		return nil, err
	}
	return ev, nil
}

// gateTurn closes out a turn on an expired or ended session: fixed
// reply, forced fallback, session end. The generator is never called.
func (p *Pipeline) gateTurn(ctx context.Context, tx Tx, sessionID, turnID, transcript string, timing store.SessionTiming, analysis *Analysis, mode string) (Result, error) {
	assistantText := prompts.SessionEndedMessage

	// Classification still runs on gated input and the real verdict is
	// the one persisted; only the caller sees the allow-empty result.
	cls, _ := safety.Classify(transcript)
	category := "session_gate"
	if err := tx.InsertSafetyEvent(ctx, store.SafetyEventInsert{
		SessionID:      sessionID,
		TurnID:         &turnID,
		Stage:          "input",
		Action:         "fallback",
		Category:       &category,
		Classification: cls,
		FallbackUsed:   true,
		PolicyVersion:  p.cfg.PolicyVersion,
		ModelVersion:   p.cfg.ModelVersion,
	}); err != nil {
		return Result{}, err
	}

	fallbackType := "session_expired"
	if _, err := tx.InsertAssistantMessage(ctx, store.AssistantMessageInsert{
		SessionID:     sessionID,
		TurnID:        &turnID,
		FinalText:     assistantText,
		FallbackUsed:  true,
		FallbackType:  &fallbackType,
		PolicyVersion: p.cfg.PolicyVersion,
		ModelVersion:  p.cfg.ModelVersion,
	}); err != nil {
		return Result{}, err
	}

	zero := 0
	if _, err := tx.InsertUtterance(ctx, sessionID, &turnID, "assistant", assistantText, &zero); err != nil {
		return Result{}, err
	}

	if err := tx.EndSession(ctx, sessionID); err != nil {
		return Result{}, err
	}
	if err := p.auditOnce(ctx, tx, sessionID, nil, "session_end",
		map[string]any{"reason": "time_limit", "max_duration_sec": timing.MaxDurationSec}); err != nil {
		return Result{}, err
	}
	if err := p.auditOnce(ctx, tx, sessionID, &turnID, "turn_complete",
		map[string]any{"turn_id": turnID, "fallback_used": true, "gated": true, "mode": mode}); err != nil {
		return Result{}, err
	}

	metrics.SessionGateHits.Inc()
	return Result{
		TurnID:        turnID,
		Transcript:    transcript,
		AssistantText: assistantText,
		Safety:        safety.Result{Label: safety.LabelAllow, Reasons: []string{}, Meta: map[string]string{}},
		FallbackUsed:  true,
		Analysis:      analysis,

		endedActiveSession: timing.Status == "active",
	}, nil
}

// respondTurn runs the normal branch: safety, response generation (or
// the fixed safe-block message), persistence, and milestone audits.
func (p *Pipeline) respondTurn(ctx context.Context, tx Tx, sessionID, turnID, transcript string, scores scoring.Scores, ev *baseline.Event, analysis *Analysis, mode string) (Result, error) {
	cls, clsFallback := safety.Classify(transcript)
	metrics.SafetyVerdicts.WithLabelValues(cls.Label).Inc()

	action := "allow"
	switch {
	case cls.Label == safety.LabelBlock:
		action = "block"
	case clsFallback:
		action = "fallback"
	}
	category := "rule_based_v1"
	if err := tx.InsertSafetyEvent(ctx, store.SafetyEventInsert{
		SessionID:      sessionID,
		TurnID:         &turnID,
		Stage:          "input",
		Action:         action,
		Category:       &category,
		Classification: cls,
		FallbackUsed:   clsFallback,
		PolicyVersion:  p.cfg.PolicyVersion,
		ModelVersion:   p.cfg.ModelVersion,
	}); err != nil {
		return Result{}, err
	}

	var assistantText, source, respMode, respErr string
	if cls.Label == safety.LabelBlock {
		assistantText = prompts.SafeBlockMessage
		source = respond.SourceSafetyBlock
		respMode = respond.ModeNeutral
	} else {
		stage := time.Now()
		rr := p.responder.Respond(ctx, transcript, cls.Label, &scores, ev)
		metrics.StageDuration.WithLabelValues("respond").Observe(time.Since(stage).Seconds())
		assistantText, source, respMode, respErr = rr.AssistantText, rr.Source, rr.Mode, rr.Err

		if source == respond.SourceFallback {
			metrics.AdapterFailures.WithLabelValues("respond").Inc()
		}
		if source == respond.SourceDomainBlock {
			metrics.DomainBlocks.Inc()
		}
	}

	analysis.Mode = respMode
	analysis.ResponseSource = source
	analysis.ResponseError = respErr

	fallbackUsed := source != respond.SourceModel
	var fallbackType *string
	switch {
	case cls.Label == safety.LabelBlock:
		s := "safety_block"
		fallbackType = &s
	case fallbackUsed:
		s := "llm_fallback"
		fallbackType = &s
	}

	if _, err := tx.InsertAssistantMessage(ctx, store.AssistantMessageInsert{
		SessionID:     sessionID,
		TurnID:        &turnID,
		FinalText:     assistantText,
		FallbackUsed:  fallbackUsed,
		FallbackType:  fallbackType,
		PolicyVersion: p.cfg.PolicyVersion,
		ModelVersion:  p.cfg.ModelVersion,
	}); err != nil {
		return Result{}, err
	}

	zero := 0
	if _, err := tx.InsertUtterance(ctx, sessionID, &turnID, "assistant", assistantText, &zero); err != nil {
		return Result{}, err
	}

	payload := map[string]any{"turn_id": turnID, "source": source, "mode": respMode}
	if respErr != "" {
		payload["error"] = respErr
	}
	if err := p.auditOnce(ctx, tx, sessionID, &turnID, "assistant_generated", payload); err != nil {
		return Result{}, err
	}
	if err := p.auditOnce(ctx, tx, sessionID, &turnID, "turn_complete",
		map[string]any{"turn_id": turnID, "fallback_used": fallbackUsed, "gated": false, "mode": mode}); err != nil {
		return Result{}, err
	}

	metrics.TurnsFinalized.Inc()
	return Result{
		TurnID:        turnID,
		Transcript:    transcript,
		AssistantText: assistantText,
		Safety:        cls,
		FallbackUsed:  fallbackUsed,
		Analysis:      analysis,
	}, nil
}

// score runs the scoring adapter with stage timing.
func (p *Pipeline) score(ctx context.Context, transcript string, hints []scoring.ChunkConfidence) scoring.Scores {
	stage := time.Now()
	scores := p.scorer.Score(ctx, transcript, hints)
	metrics.StageDuration.WithLabelValues("scoring").Observe(time.Since(stage).Seconds())
	if scores.Source == scoring.SourceFallback {
		metrics.AdapterFailures.WithLabelValues("scoring").Inc()
	}
	return scores
}

// auditScores writes the scores_computed milestone. Scores only, no
// transcript text.
func (p *Pipeline) auditScores(ctx context.Context, tx Tx, sessionID, turnID, utteranceID string, scores scoring.Scores) error {
	payload := map[string]any{
		"turn_id":      turnID,
		"utterance_id": utteranceID,
		"valence":      scores.Valence,
		"arousal":      scores.Arousal,
		"confidence":   scores.Confidence,
		"extremeness":  scores.Extremeness,
		"source":       scores.Source,
	}
	if scores.Err != "" {
		payload["error"] = scores.Err
	}
	return p.auditOnce(ctx, tx, sessionID, &turnID, "scores_computed", payload)
}

// auditOnce writes a milestone audit entry exactly once per
// (session, turn, event_type): check then insert, with the store's
// unique index backstopping the race window.
func (p *Pipeline) auditOnce(ctx context.Context, tx Tx, sessionID string, turnID *string, eventType string, payload map[string]any) error {
	exists, err := tx.AuditEventExists(ctx, sessionID, turnID, eventType)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return tx.InsertAudit(ctx, sessionID, turnID, eventType, payload, p.cfg.PolicyVersion, p.cfg.ModelVersion)
}

func clampPtr01(x *float64) *float64 {
	if x == nil {
		return nil
	}
	v := *x
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}
