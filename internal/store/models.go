package store

import "time"

// SessionTiming is the timing oracle's view of a session, computed
// against the database clock.
type SessionTiming struct {
	Status         string    `json:"status"`
	MaxDurationSec int       `json:"max_duration_sec"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSec     int       `json:"elapsed_sec"`
	RemainingSec   int       `json:"remaining_sec"`
}

// Gated reports whether the session should stop accepting normal turns.
func (t SessionTiming) Gated() bool {
	return t.Status != "active" || t.RemainingSec <= 0
}

// Chunk is one in-progress transcript fragment of an open turn.
type Chunk struct {
	ID         string
	ChunkIndex int
	Text       string
	Confidence *float64
}

// AssistantMessage is the durable record of what was actually said.
type AssistantMessage struct {
	FinalText    string
	FallbackUsed bool
	FallbackType *string
}

// AssistantMessageInsert carries one assistant_messages row.
type AssistantMessageInsert struct {
	SessionID     string
	TurnID        *string
	DraftText     *string
	FinalText     string
	FallbackUsed  bool
	FallbackType  *string
	PolicyVersion string
	ModelVersion  string
}

// SafetyEventInsert carries one safety_events row. Classification is
// marshaled to JSON by the writer.
type SafetyEventInsert struct {
	SessionID      string
	TurnID         *string
	Stage          string
	Action         string
	Category       *string
	Severity       *float64
	Classification any
	FallbackUsed   bool
	PolicyVersion  string
	ModelVersion   string
}

// Settings are the per-user flags the pipeline consults at finalize.
type Settings struct {
	PersonalizationOptIn bool `json:"personalization_opt_in"`
	BaselineOptIn        bool `json:"baseline_opt_in"`
	StoreTranscripts     bool `json:"store_transcripts"`
	NoTranscriptMode     bool `json:"no_transcript_mode"`
}

// IngestMeta is the transcript-ingest metadata stamped on a turn.
type IngestMeta struct {
	InputMode       string
	Confidence      *float64
	DurationMs      *int
	SpeechRate      *float64
	PauseRatio      *float64
	STTProviderUsed string
	FallbackUsed    bool
	Transcript      *string
}

// TrendPoint is one daily trend bucket with means derived from the
// stored sums, never stored themselves.
type TrendPoint struct {
	Day             string   `json:"day"`
	N               int      `json:"n"`
	ValenceMean     *float64 `json:"valence_mean"`
	ArousalMean     *float64 `json:"arousal_mean"`
	ConfidenceMean  *float64 `json:"confidence_mean"`
	ExtremenessMean *float64 `json:"extremeness_mean"`
}
