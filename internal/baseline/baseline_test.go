package baseline

import (
	"math"
	"testing"
)

func fp(x float64) *float64 { return &x }

func TestFirstObservationInitializesExactly(t *testing.T) {
	t.Parallel()

	next, ev := Update(DefaultConfig(), State{}, Observation{
		Valence: fp(0.42),
		Arousal: fp(0.3),
	})
	if ev == nil {
		t.Fatal("expected an update event")
	}
	if *next.Valence.Mean != 0.42 || *next.Valence.Var != 0 {
		t.Fatalf("valence mean/var = %v/%v, want 0.42/0", *next.Valence.Mean, *next.Valence.Var)
	}
	if *next.Arousal.Mean != 0.3 || *next.Arousal.Var != 0 {
		t.Fatalf("arousal mean/var = %v/%v, want 0.3/0", *next.Arousal.Mean, *next.Arousal.Var)
	}
	if ev.Spike.IsSpike {
		t.Fatal("no prior state, spike must be false")
	}
	if ev.Delta.ValenceDelta != nil {
		t.Fatal("no prior mean, valence delta must be nil")
	}
}

func TestRepeatedObservationConverges(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	state := State{}
	const x = 0.7
	for i := 0; i < 200; i++ {
		var ev *Event
		state, ev = Update(cfg, state, Observation{Valence: fp(x), Arousal: fp(0.5), Confidence: fp(1), TranscriptConfidence: fp(1)})
		if ev == nil {
			t.Fatalf("update %d returned nil event", i)
		}
	}
	if math.Abs(*state.Valence.Mean-x) > 1e-6 {
		t.Fatalf("mean did not converge: got %v", *state.Valence.Mean)
	}
	if *state.Valence.Var > 1e-6 {
		t.Fatalf("variance did not converge to 0: got %v", *state.Valence.Var)
	}
}

func TestSpikeDetection(t *testing.T) {
	t.Parallel()

	prev := State{Valence: Signal{Mean: fp(0), Var: fp(1)}}
	_, ev := Update(DefaultConfig(), prev, Observation{Valence: fp(3)})
	if ev == nil {
		t.Fatal("expected event")
	}
	if ev.Spike.ValenceZ == nil {
		t.Fatal("expected a valence z-score")
	}
	if z := *ev.Spike.ValenceZ; math.Abs(z-3) > 0.01 {
		t.Fatalf("z = %v, want ~3.0", z)
	}
	if !ev.Spike.IsSpike {
		t.Fatal("|z| >= 2.5 must flag a spike")
	}
}

func TestExtremenessFlag(t *testing.T) {
	t.Parallel()

	_, ev := Update(DefaultConfig(), State{}, Observation{Valence: fp(-0.8), Arousal: fp(0.9)})
	if ev == nil {
		t.Fatal("expected event")
	}
	if ev.Extremeness.Value == nil {
		t.Fatal("both signals present, extremeness must be computed")
	}
	if got := *ev.Extremeness.Value; math.Abs(got-0.76) > 1e-9 {
		t.Fatalf("extremeness = %v, want 0.76", got)
	}
	if !ev.Extremeness.IsExtreme {
		t.Fatal("0.76 > 0.55 must flag extreme")
	}
}

func TestDeltaShiftFlags(t *testing.T) {
	t.Parallel()

	prev := State{
		Valence: Signal{Mean: fp(0.1), Var: fp(0.5)},
		Arousal: Signal{Mean: fp(0.2), Var: fp(0.5)},
	}
	_, ev := Update(DefaultConfig(), prev, Observation{Valence: fp(-0.6), Arousal: fp(0.5)})
	if ev == nil {
		t.Fatal("expected event")
	}
	if !ev.Delta.Flags.ValenceShift {
		t.Fatalf("|-0.6 - 0.1| = 0.7 >= 0.6 must flag a valence shift, delta=%v", *ev.Delta.ValenceDelta)
	}
	if ev.Delta.Flags.ArousalShift {
		t.Fatalf("|0.5 - 0.2| = 0.3 < 0.6 must not flag an arousal shift")
	}
}

func TestWeightFloorAndLowConfidence(t *testing.T) {
	t.Parallel()

	_, ev := Update(DefaultConfig(), State{}, Observation{
		Valence:              fp(0.5),
		Confidence:           fp(0),
		TranscriptConfidence: fp(0),
	})
	if ev == nil {
		t.Fatal("expected event")
	}
	if ev.Weight != 0.05 {
		t.Fatalf("weight = %v, want the 0.05 floor", ev.Weight)
	}
}

func TestAllSignalsAbsentIsNoOp(t *testing.T) {
	t.Parallel()

	_, ev := Update(DefaultConfig(), State{}, Observation{Confidence: fp(0.9)})
	if ev != nil {
		t.Fatal("observation with no signals must produce no event")
	}
}

func TestAbsentSignalLeavesPriorStateUntouched(t *testing.T) {
	t.Parallel()

	prev := State{Arousal: Signal{Mean: fp(0.4), Var: fp(0.01)}}
	next, ev := Update(DefaultConfig(), prev, Observation{Valence: fp(0.2)})
	if ev == nil {
		t.Fatal("expected event")
	}
	if *next.Arousal.Mean != 0.4 || *next.Arousal.Var != 0.01 {
		t.Fatalf("arousal state changed without an observation: %+v", next.Arousal)
	}
}
