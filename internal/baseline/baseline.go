// Package baseline maintains per-user rolling emotional baselines as
// weighted exponential moving averages, and flags observations that
// deviate sharply from them (delta shifts, z-score spikes, extremeness).
package baseline

import "math"

// Config holds the tracker's tuning knobs. These are hand-tuned
// heuristics, not learned parameters.
type Config struct {
	Alpha         float64 // EMA step size
	ZThreshold    float64 // spike detection threshold (std devs)
	DeltaValence  float64 // "big shift" from baseline (valence)
	DeltaArousal  float64 // "big shift" from baseline (arousal)
	ExtremeThresh float64 // extremeness gating threshold
	MinWeight     float64 // floor for updates when confidence is low
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:         0.10,
		ZThreshold:    2.5,
		DeltaValence:  0.60,
		DeltaArousal:  0.60,
		ExtremeThresh: 0.55,
		MinWeight:     0.05,
	}
}

const eps = 1e-6

// Signal is one tracked mean/variance pair. Nil mean/var means no prior
// state exists for the signal.
type Signal struct {
	Mean *float64 `json:"mean"`
	Var  *float64 `json:"var"`
}

// State is a user's full baseline: one signal per tracked dimension.
type State struct {
	Valence    Signal
	Arousal    Signal
	SpeechRate Signal
	PauseRatio Signal
}

// Observation carries one turn's signals. Nil fields are absent and
// leave the corresponding baseline signal untouched.
type Observation struct {
	Valence              *float64
	Arousal              *float64
	Confidence           *float64 // emotion-scoring confidence
	TranscriptConfidence *float64 // STT/transcript-quality confidence
	SpeechRate           *float64
	PauseRatio           *float64
}

// Event is the full record of one baseline update, persisted append-only
// for drift visualization and for conditioning the response tone.
type Event struct {
	SchemaVersion int         `json:"schema_version"`
	Updated       bool        `json:"updated"`
	Method        string      `json:"method"`
	Alpha         float64     `json:"alpha"`
	Weight        float64     `json:"weight"`
	Inputs        Inputs      `json:"inputs"`
	Before        Snapshot    `json:"before"`
	After         Snapshot    `json:"after"`
	Delta         Delta       `json:"delta"`
	Spike         Spike       `json:"spike"`
	Extremeness   Extremeness `json:"extremeness"`
}

// Inputs echoes the observation that produced the event.
type Inputs struct {
	Valence              *float64 `json:"valence"`
	Arousal              *float64 `json:"arousal"`
	Confidence           *float64 `json:"confidence"`
	TranscriptConfidence *float64 `json:"transcript_confidence"`
	SpeechRate           *float64 `json:"speech_rate_wpm"`
	PauseRatio           *float64 `json:"pause_ratio"`
}

// Snapshot is a flattened view of State for event payloads.
type Snapshot struct {
	ValenceMean    *float64 `json:"valence_mean"`
	ValenceVar     *float64 `json:"valence_var"`
	ArousalMean    *float64 `json:"arousal_mean"`
	ArousalVar     *float64 `json:"arousal_var"`
	SpeechRateMean *float64 `json:"speech_rate_mean"`
	SpeechRateVar  *float64 `json:"speech_rate_var"`
	PauseRatioMean *float64 `json:"pause_ratio_mean"`
	PauseRatioVar  *float64 `json:"pause_ratio_var"`
}

// Delta holds shift diagnostics computed against the pre-update means.
type Delta struct {
	ValenceDelta *float64   `json:"valence_delta"`
	ArousalDelta *float64   `json:"arousal_delta"`
	Flags        DeltaFlags `json:"flags"`
}

// DeltaFlags marks signals that moved past the shift thresholds.
type DeltaFlags struct {
	ValenceShift bool `json:"valence_shift"`
	ArousalShift bool `json:"arousal_shift"`
}

// Spike holds z-score diagnostics computed against the pre-update state.
type Spike struct {
	ZThreshold float64  `json:"z_threshold"`
	ValenceZ   *float64 `json:"valence_z"`
	ArousalZ   *float64 `json:"arousal_z"`
	IsSpike    bool     `json:"is_spike"`
}

// Extremeness combines valence magnitude and arousal into one scalar.
type Extremeness struct {
	Value     *float64 `json:"value"`
	Threshold float64  `json:"threshold"`
	IsExtreme bool     `json:"is_extreme"`
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// ComputeExtremeness returns |valence| * (0.5 + 0.5*arousal).
func ComputeExtremeness(valence, arousal float64) float64 {
	return math.Abs(valence) * (0.5 + 0.5*arousal)
}

// emaUpdate applies one weighted EMA step to a mean/var pair. Missing
// prior state initializes from the observation (mean = x, var = 0).
func emaUpdate(s Signal, x, alpha, weight float64) Signal {
	mean, v := x, 0.0
	if s.Mean != nil {
		mean = *s.Mean
	}
	if s.Var != nil {
		v = *s.Var
	}

	a := clamp(alpha*weight, 0, 1)
	newMean := (1-a)*mean + a*x
	dev := x - newMean
	newVar := (1-a)*v + a*(dev*dev)

	return Signal{Mean: &newMean, Var: &newVar}
}

// Update folds one observation into the prior state and returns the
// updated state plus a full diagnostic event. It returns (zero, nil)
// when every signal is absent; opt-in gating is the caller's concern.
// Diagnostics are computed against the state before the update.
func Update(cfg Config, prev State, obs Observation) (State, *Event) {
	if obs.Valence == nil && obs.Arousal == nil && obs.SpeechRate == nil && obs.PauseRatio == nil {
		return State{}, nil
	}

	// Conservative weight: shrink the step when either the emotion
	// scoring or the transcript is untrustworthy.
	w1, w2 := 1.0, 1.0
	if obs.Confidence != nil {
		w1 = clamp(*obs.Confidence, 0, 1)
	}
	if obs.TranscriptConfidence != nil {
		w2 = clamp(*obs.TranscriptConfidence, 0, 1)
	}
	weight := math.Max(cfg.MinWeight, w1*w2)

	ev := &Event{
		SchemaVersion: 2,
		Updated:       true,
		Method:        "ema_weighted",
		Alpha:         cfg.Alpha,
		Weight:        weight,
		Inputs: Inputs{
			Valence:              obs.Valence,
			Arousal:              obs.Arousal,
			Confidence:           obs.Confidence,
			TranscriptConfidence: obs.TranscriptConfidence,
			SpeechRate:           obs.SpeechRate,
			PauseRatio:           obs.PauseRatio,
		},
		Before: snapshot(prev),
		Delta:  Delta{},
		Spike:  Spike{ZThreshold: cfg.ZThreshold},
		Extremeness: Extremeness{
			Threshold: cfg.ExtremeThresh,
		},
	}

	if obs.Valence != nil && obs.Arousal != nil {
		x := ComputeExtremeness(*obs.Valence, *obs.Arousal)
		ev.Extremeness.Value = &x
		ev.Extremeness.IsExtreme = x > cfg.ExtremeThresh
	}

	if obs.Valence != nil && prev.Valence.Mean != nil {
		dv := *obs.Valence - *prev.Valence.Mean
		ev.Delta.ValenceDelta = &dv
		ev.Delta.Flags.ValenceShift = math.Abs(dv) >= cfg.DeltaValence
	}
	if obs.Arousal != nil && prev.Arousal.Mean != nil {
		da := *obs.Arousal - *prev.Arousal.Mean
		ev.Delta.ArousalDelta = &da
		ev.Delta.Flags.ArousalShift = math.Abs(da) >= cfg.DeltaArousal
	}

	if obs.Valence != nil && prev.Valence.Mean != nil && prev.Valence.Var != nil {
		z := (*obs.Valence - *prev.Valence.Mean) / math.Sqrt(*prev.Valence.Var+eps)
		ev.Spike.ValenceZ = &z
		ev.Spike.IsSpike = ev.Spike.IsSpike || math.Abs(z) >= cfg.ZThreshold
	}
	if obs.Arousal != nil && prev.Arousal.Mean != nil && prev.Arousal.Var != nil {
		z := (*obs.Arousal - *prev.Arousal.Mean) / math.Sqrt(*prev.Arousal.Var+eps)
		ev.Spike.ArousalZ = &z
		ev.Spike.IsSpike = ev.Spike.IsSpike || math.Abs(z) >= cfg.ZThreshold
	}

	next := prev
	if obs.Valence != nil {
		next.Valence = emaUpdate(prev.Valence, *obs.Valence, cfg.Alpha, weight)
	}
	if obs.Arousal != nil {
		next.Arousal = emaUpdate(prev.Arousal, *obs.Arousal, cfg.Alpha, weight)
	}
	if obs.SpeechRate != nil {
		next.SpeechRate = emaUpdate(prev.SpeechRate, *obs.SpeechRate, cfg.Alpha, weight)
	}
	if obs.PauseRatio != nil {
		next.PauseRatio = emaUpdate(prev.PauseRatio, *obs.PauseRatio, cfg.Alpha, weight)
	}

	ev.After = snapshot(next)
	return next, ev
}

func snapshot(s State) Snapshot {
	return Snapshot{
		ValenceMean:    s.Valence.Mean,
		ValenceVar:     s.Valence.Var,
		ArousalMean:    s.Arousal.Mean,
		ArousalVar:     s.Arousal.Var,
		SpeechRateMean: s.SpeechRate.Mean,
		SpeechRateVar:  s.SpeechRate.Var,
		PauseRatioMean: s.PauseRatio.Mean,
		PauseRatioVar:  s.PauseRatio.Var,
	}
}
