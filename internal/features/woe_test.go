package features

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestFitNumericBinMap(t *testing.T) {
	// Low values skew good, high values skew bad.
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	labels := []bool{false, false, false, false, false, false, true, true, true, true, true, true}

	bm, err := FitNumericBinMap("amount_sum", values, labels, 4)
	if err != nil {
		t.Fatalf("FitNumericBinMap failed: %v", err)
	}

	t.Run("BinsPartitionTheLine", func(t *testing.T) {
		if bm.Kind != "numeric" {
			t.Errorf("expected numeric kind, got %s", bm.Kind)
		}
		if len(bm.Bins) < 2 {
			t.Fatalf("expected at least 2 bins, got %d", len(bm.Bins))
		}
		if bm.Bins[0].Lower != nil {
			t.Error("first bin must open at -Inf (nil lower)")
		}
		if bm.Bins[len(bm.Bins)-1].Upper != nil {
			t.Error("last bin must close at +Inf (nil upper)")
		}
		total := 0
		for _, bin := range bm.Bins {
			total += bin.CountGood + bin.CountBad
		}
		if total != len(values) {
			t.Errorf("bin counts sum to %d, expected %d", total, len(values))
		}
	})

	t.Run("WoEFiniteAndMonotone", func(t *testing.T) {
		for i, bin := range bm.Bins {
			if math.IsNaN(bin.WoE) || math.IsInf(bin.WoE, 0) {
				t.Errorf("bin %d: WoE not finite: %v", i, bin.WoE)
			}
		}
		// With this label pattern risk rises with the value, so the last
		// bin must carry more evidence of default than the first.
		if bm.Bins[0].WoE >= bm.Bins[len(bm.Bins)-1].WoE {
			t.Errorf("WoE not increasing with risk: first=%v last=%v",
				bm.Bins[0].WoE, bm.Bins[len(bm.Bins)-1].WoE)
		}
	})

	t.Run("IVPositiveForSeparatingFeature", func(t *testing.T) {
		if bm.IV <= 0 {
			t.Errorf("expected positive IV for a separating feature, got %v", bm.IV)
		}
		var sum float64
		for _, bin := range bm.Bins {
			sum += bin.IVContribution
		}
		if math.Abs(sum-bm.IV) > 1e-12 {
			t.Errorf("IV %v does not equal sum of contributions %v", bm.IV, sum)
		}
	})
}

func TestFitNumericBinMapSmoothing(t *testing.T) {
	// One bin holds a single class; smoothing must keep the log ratio finite.
	values := []float64{1, 1, 1, 100, 100, 100}
	labels := []bool{false, false, false, true, true, true}

	bm, err := FitNumericBinMap("f", values, labels, 2)
	if err != nil {
		t.Fatalf("FitNumericBinMap failed: %v", err)
	}
	for i, bin := range bm.Bins {
		if math.IsInf(bin.WoE, 0) || math.IsNaN(bin.WoE) {
			t.Errorf("bin %d: pure-class bin produced non-finite WoE %v", i, bin.WoE)
		}
	}
}

func TestFitNumericBinMapHeavyTies(t *testing.T) {
	// 90% of the mass on one value collapses most quantile edges; the fit
	// must merge bins instead of erroring or emitting empty ones.
	values := make([]float64, 50)
	labels := make([]bool, 50)
	for i := range values {
		values[i] = 5
		labels[i] = i%3 == 0
	}
	values[48], values[49] = 80, 90

	bm, err := FitNumericBinMap("f", values, labels, 10)
	if err != nil {
		t.Fatalf("FitNumericBinMap failed on tied values: %v", err)
	}
	for i, bin := range bm.Bins {
		if bin.CountGood+bin.CountBad == 0 {
			t.Errorf("bin %d is empty", i)
		}
	}
}

func TestFitNumericBinMapErrors(t *testing.T) {
	t.Run("SingleClass", func(t *testing.T) {
		_, err := FitNumericBinMap("f", []float64{1, 2, 3}, []bool{true, true, true}, 2)
		if !errors.Is(err, domain.ErrSingleClass) {
			t.Errorf("expected ErrSingleClass, got %v", err)
		}
	})

	t.Run("ZeroVariance", func(t *testing.T) {
		_, err := FitNumericBinMap("f", []float64{7, 7, 7, 7}, []bool{true, false, true, false}, 2)
		if !errors.Is(err, domain.ErrZeroVariance) {
			t.Errorf("expected ErrZeroVariance, got %v", err)
		}
	})

	t.Run("MisalignedInput", func(t *testing.T) {
		_, err := FitNumericBinMap("f", []float64{1, 2}, []bool{true}, 2)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestFitCategoricalBinMap(t *testing.T) {
	values := []string{"airtime", "airtime", "airtime", "utility", "utility", "utility"}
	labels := []bool{false, false, true, true, true, false}

	bm, err := FitCategoricalBinMap("category", values, labels)
	if err != nil {
		t.Fatalf("FitCategoricalBinMap failed: %v", err)
	}

	if bm.Kind != "categorical" {
		t.Errorf("expected categorical kind, got %s", bm.Kind)
	}
	if len(bm.Bins) != 2 {
		t.Fatalf("expected one bin per category, got %d", len(bm.Bins))
	}
	// Sorted category order for determinism.
	if bm.Bins[0].Categories[0] != "airtime" || bm.Bins[1].Categories[0] != "utility" {
		t.Errorf("bins not in sorted category order: %v, %v",
			bm.Bins[0].Categories, bm.Bins[1].Categories)
	}
	// utility carries more bad mass than airtime.
	if bm.Bins[1].WoE <= bm.Bins[0].WoE {
		t.Errorf("expected utility WoE above airtime: %v vs %v",
			bm.Bins[1].WoE, bm.Bins[0].WoE)
	}

	t.Run("SingleCategory", func(t *testing.T) {
		_, err := FitCategoricalBinMap("f", []string{"a", "a"}, []bool{true, false})
		if !errors.Is(err, domain.ErrZeroVariance) {
			t.Errorf("expected ErrZeroVariance, got %v", err)
		}
	})
}

func TestApplyBinMap(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	labels := []bool{false, false, false, false, true, true, true, true}
	numeric, err := FitNumericBinMap("f", values, labels, 2)
	if err != nil {
		t.Fatalf("FitNumericBinMap failed: %v", err)
	}

	t.Run("OutOfRangeFallsIntoOuterBins", func(t *testing.T) {
		low := ApplyBinMap(numeric, -1000.0)
		high := ApplyBinMap(numeric, 1000.0)
		if low != numeric.Bins[0].WoE {
			t.Errorf("below-range value got %v, want first bin WoE %v", low, numeric.Bins[0].WoE)
		}
		if high != numeric.Bins[len(numeric.Bins)-1].WoE {
			t.Errorf("above-range value got %v, want last bin WoE %v",
				high, numeric.Bins[len(numeric.Bins)-1].WoE)
		}
	})

	t.Run("UnseenCategoryIsNeutral", func(t *testing.T) {
		cat, err := FitCategoricalBinMap("f",
			[]string{"a", "a", "b", "b"}, []bool{false, true, true, false})
		if err != nil {
			t.Fatalf("FitCategoricalBinMap failed: %v", err)
		}
		if got := ApplyBinMap(cat, "never-seen"); got != 0 {
			t.Errorf("unseen category got WoE %v, want 0", got)
		}
		if got := ApplyBinMap(cat, "a"); got != cat.Bins[0].WoE {
			t.Errorf("known category got %v, want %v", got, cat.Bins[0].WoE)
		}
	})

	t.Run("WrongValueTypeIsNeutral", func(t *testing.T) {
		if got := ApplyBinMap(numeric, "not-a-number"); got != 0 {
			t.Errorf("expected 0 for mistyped value, got %v", got)
		}
	})
}

func TestQuantile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	tests := []struct {
		q    float64
		want float64
	}{
		{0, 10},
		{0.5, 25},
		{1, 40},
	}
	for _, tc := range tests {
		if got := quantile(sorted, tc.q); got != tc.want {
			t.Errorf("quantile(%v) = %v, want %v", tc.q, got, tc.want)
		}
	}
}
