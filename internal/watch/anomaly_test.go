package watch

import (
	"errors"
	"testing"
)

func TestEngine_coldStart(t *testing.T) {
	e := Engine{MinSamples: 5}

	histories := [][]float64{
		nil,
		{0.6},
		{0.6, 0.61, 0.62, 0.63}, // one short of the minimum
	}
	for _, h := range histories {
		res, err := e.Compute(h, 0.4)
		if err != nil {
			t.Fatalf("Compute(%d samples) error = %v", len(h), err)
		}
		if res.AnomalyPct != 0 || res.ZScore != 0 || res.Valid {
			t.Errorf("Compute(%d samples) = %+v, want neutral invalid result", len(h), res)
		}
	}
}

func TestEngine_zeroVariance(t *testing.T) {
	e := Engine{MinSamples: 5}

	res, err := e.Compute([]float64{0.6, 0.6, 0.6, 0.6, 0.6, 0.6}, 0.2)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if res.AnomalyPct != 0 || res.ZScore != 0 || res.Valid {
		t.Errorf("Compute() = %+v, want neutral invalid result for flat history", res)
	}
}

func TestEngine_knownHistory(t *testing.T) {
	// Ten samples, mean 0.645, sample stdev ~0.0108.
	history := []float64{0.63, 0.64, 0.65, 0.66, 0.64, 0.65, 0.63, 0.66, 0.64, 0.65}
	e := Engine{MinSamples: 5}

	res, err := e.Compute(history, 0.52)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !res.Valid {
		t.Fatal("Compute() Valid = false, want true")
	}
	if res.AnomalyPct != -19.38 {
		t.Errorf("AnomalyPct = %v, want -19.38", res.AnomalyPct)
	}
	if res.ZScore != -11.57 {
		t.Errorf("ZScore = %v, want -11.57", res.ZScore)
	}
}

func TestEngine_deterministic(t *testing.T) {
	history := []float64{0.61, 0.58, 0.63, 0.6, 0.59, 0.62, 0.64}
	e := Engine{MinSamples: 5}

	first, err := e.Compute(history, 0.55)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Compute(history, 0.55)
		if err != nil {
			t.Fatalf("Compute() error = %v", err)
		}
		if again != first {
			t.Fatalf("Compute() run %d = %+v, want %+v", i, again, first)
		}
	}
}

func TestEngine_zeroMean(t *testing.T) {
	history := []float64{-0.1, 0.1, -0.2, 0.2, 0.0}
	e := Engine{MinSamples: 5}

	res, err := e.Compute(history, 0.3)
	if !errors.Is(err, ErrZeroMean) {
		t.Fatalf("Compute() error = %v, want ErrZeroMean", err)
	}
	if res.AnomalyPct != 0 {
		t.Errorf("AnomalyPct = %v, want 0 when the mean is zero", res.AnomalyPct)
	}
	if res.ZScore != 1.9 {
		t.Errorf("ZScore = %v, want 1.9", res.ZScore)
	}
	if !res.Valid {
		t.Error("Valid = false, want true: the z-score is still usable")
	}
}

func TestEngine_rounding(t *testing.T) {
	// Mean 0.3, sample stdev of [0.2 0.3 0.4 0.3 0.3] around it.
	history := []float64{0.2, 0.3, 0.4, 0.3, 0.3}
	e := Engine{MinSamples: 5}

	res, err := e.Compute(history, 0.25)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	// -0.05/0.3*100 = -16.666..., stdev = sqrt(0.02/4) ~ 0.07071.
	if res.AnomalyPct != -16.67 {
		t.Errorf("AnomalyPct = %v, want -16.67", res.AnomalyPct)
	}
	if res.ZScore != -0.71 {
		t.Errorf("ZScore = %v, want -0.71", res.ZScore)
	}
}

func TestDelta7d(t *testing.T) {
	short := []float64{0.6, 0.61, 0.62}
	if _, ok := Delta7d(short, 0.5); ok {
		t.Error("Delta7d() ok = true for a 3-sample history, want false")
	}

	history := []float64{0.70, 0.68, 0.66, 0.64, 0.62, 0.60, 0.58, 0.56}
	// Seven back from the end is 0.68.
	got, ok := Delta7d(history, 0.50)
	if !ok {
		t.Fatal("Delta7d() ok = false, want true")
	}
	if got != -0.18 {
		t.Errorf("Delta7d() = %v, want -0.18", got)
	}
}
