package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// woeSmoothing is added to each class count per bin so the log ratio stays
// finite when a bin holds only one class.
const woeSmoothing = 0.5

// FitNumericBinMap partitions a numeric feature into quantile bins and fits
// a Weight-of-Evidence value per bin against the proxy label.
//
// WoE(bin) = ln(distBad / distGood) where distBad is the bin's share of all
// high-risk rows and distGood its share of low-risk rows. IV is the sum over
// bins of (distBad - distGood) * WoE. Both classes must be present; a flat
// feature cannot be binned.
func FitNumericBinMap(feature string, values []float64, labels []bool, bins int) (domain.BinMap, error) {
	if len(values) == 0 || len(values) != len(labels) {
		return domain.BinMap{}, fmt.Errorf("%w: values and labels must align for feature %q", domain.ErrInvalidInput, feature)
	}
	if err := checkTwoClasses(feature, labels); err != nil {
		return domain.BinMap{}, err
	}
	if bins < 2 {
		bins = 2
	}

	boundaries, err := quantileBoundaries(feature, values, bins)
	if err != nil {
		return domain.BinMap{}, err
	}

	// Interior boundaries partition the line into len(boundaries)+1
	// intervals, the first opening at -Inf and the last closing at +Inf,
	// so every future value falls into exactly one bin.
	binCount := len(boundaries) + 1
	counts := make([][2]int, binCount) // [good, bad]
	for i, v := range values {
		b := intervalIndex(v, boundaries)
		if labels[i] {
			counts[b][1]++
		} else {
			counts[b][0]++
		}
	}

	bm := domain.BinMap{
		Feature: feature,
		Kind:    "numeric",
		Bins:    make([]domain.Bin, binCount),
	}
	for b := 0; b < binCount; b++ {
		bin := domain.Bin{
			CountGood: counts[b][0],
			CountBad:  counts[b][1],
		}
		if b > 0 {
			lower := boundaries[b-1]
			bin.Lower = &lower
		}
		if b < len(boundaries) {
			upper := boundaries[b]
			bin.Upper = &upper
		}
		bm.Bins[b] = bin
	}

	fitWoE(&bm)
	return bm, nil
}

// FitCategoricalBinMap fits one WoE bin per training category. Unseen
// categories at inference fall through to a neutral WoE of zero.
func FitCategoricalBinMap(feature string, values []string, labels []bool) (domain.BinMap, error) {
	if len(values) == 0 || len(values) != len(labels) {
		return domain.BinMap{}, fmt.Errorf("%w: values and labels must align for feature %q", domain.ErrInvalidInput, feature)
	}
	if err := checkTwoClasses(feature, labels); err != nil {
		return domain.BinMap{}, err
	}

	type classCount struct{ good, bad int }
	byCat := make(map[string]*classCount)
	for i, v := range values {
		cc := byCat[v]
		if cc == nil {
			cc = &classCount{}
			byCat[v] = cc
		}
		if labels[i] {
			cc.bad++
		} else {
			cc.good++
		}
	}
	if len(byCat) < 2 {
		return domain.BinMap{}, fmt.Errorf("%w: feature %q has a single distinct value", domain.ErrZeroVariance, feature)
	}

	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	bm := domain.BinMap{
		Feature: feature,
		Kind:    "categorical",
		Bins:    make([]domain.Bin, len(cats)),
	}
	for i, c := range cats {
		bm.Bins[i] = domain.Bin{
			Categories: []string{c},
			CountGood:  byCat[c].good,
			CountBad:   byCat[c].bad,
		}
	}

	fitWoE(&bm)
	return bm, nil
}

// fitWoE fills WoE and IV contributions from the bin class counts.
func fitWoE(bm *domain.BinMap) {
	var totalGood, totalBad float64
	for _, bin := range bm.Bins {
		totalGood += float64(bin.CountGood) + woeSmoothing
		totalBad += float64(bin.CountBad) + woeSmoothing
	}

	bm.IV = 0
	for i := range bm.Bins {
		distGood := (float64(bm.Bins[i].CountGood) + woeSmoothing) / totalGood
		distBad := (float64(bm.Bins[i].CountBad) + woeSmoothing) / totalBad

		woe := math.Log(distBad / distGood)
		iv := (distBad - distGood) * woe

		bm.Bins[i].WoE = woe
		bm.Bins[i].IVContribution = iv
		bm.IV += iv
	}
}

// ApplyBinMap maps one raw value onto its fitted WoE. For numeric maps the
// open outer intervals absorb out-of-range values; for categorical maps an
// unseen category gets the neutral WoE 0.
func ApplyBinMap(bm domain.BinMap, value interface{}) float64 {
	switch bm.Kind {
	case "numeric":
		v, ok := value.(float64)
		if !ok {
			return 0
		}
		for _, bin := range bm.Bins {
			if bin.Lower != nil && v < *bin.Lower {
				continue
			}
			if bin.Upper != nil && v >= *bin.Upper {
				continue
			}
			return bin.WoE
		}
		return 0

	case "categorical":
		v, ok := value.(string)
		if !ok {
			return 0
		}
		for _, bin := range bm.Bins {
			for _, c := range bin.Categories {
				if c == v {
					return bin.WoE
				}
			}
		}
		return 0
	}
	return 0
}

// quantileBoundaries computes interior bin edges at evenly spaced quantiles,
// collapsing duplicate edges so heavy value ties merge into wider bins
// instead of producing empty ones.
func quantileBoundaries(feature string, values []float64, bins int) ([]float64, error) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if sorted[0] == sorted[len(sorted)-1] {
		return nil, fmt.Errorf("%w: feature %q has a single distinct value", domain.ErrZeroVariance, feature)
	}

	var boundaries []float64
	for q := 1; q < bins; q++ {
		b := quantile(sorted, float64(q)/float64(bins))
		if len(boundaries) == 0 || b > boundaries[len(boundaries)-1] {
			boundaries = append(boundaries, b)
		}
	}

	// Degenerate spread can still collapse every interior edge onto the
	// minimum; fall back to a single split at the midpoint.
	if len(boundaries) == 0 || (len(boundaries) == 1 && boundaries[0] <= sorted[0]) {
		boundaries = []float64{(sorted[0] + sorted[len(sorted)-1]) / 2}
	}

	return boundaries, nil
}

// quantile returns the linearly interpolated q-quantile of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// intervalIndex finds the bin index for v given interior boundaries
// (lower inclusive, upper exclusive).
func intervalIndex(v float64, boundaries []float64) int {
	for i, b := range boundaries {
		if v < b {
			return i
		}
	}
	return len(boundaries)
}

// checkTwoClasses verifies the proxy label carries both classes; WoE is
// undefined otherwise.
func checkTwoClasses(feature string, labels []bool) error {
	var hasGood, hasBad bool
	for _, l := range labels {
		if l {
			hasBad = true
		} else {
			hasGood = true
		}
		if hasGood && hasBad {
			return nil
		}
	}
	return fmt.Errorf("%w: cannot fit WoE for feature %q", domain.ErrSingleClass, feature)
}
