package features

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MissingCategory is the explicit fallback bucket for absent categorical
// values, fit into the vocabulary so it carries its own code and WoE bin.
const MissingCategory = "__missing__"

// FitNumericImputer fits a median fill value over the present training
// values of one numeric feature.
func FitNumericImputer(values []float64) (domain.ImputerParams, error) {
	if len(values) == 0 {
		return domain.ImputerParams{}, fmt.Errorf("%w: no values to fit imputer", domain.ErrInvalidInput)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return domain.ImputerParams{
		Strategy:    "median",
		NumericFill: median,
	}, nil
}

// FitCategoricalImputer returns the fixed missing-category policy.
func FitCategoricalImputer() domain.ImputerParams {
	return domain.ImputerParams{
		Strategy:     "missing_category",
		CategoryFill: MissingCategory,
	}
}
