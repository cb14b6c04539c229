package features

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FitScaler computes per-column standardization parameters (mean and
// population std) over the training rows only.
//
// In strict mode a flat column is a fatal error: a zero-variance feature
// cannot be meaningfully scaled or binned. Non-strict callers (RFM scaling
// before clustering) get a unit std instead, matching the usual
// standard-scaler convention.
func FitScaler(columns []string, rows [][]float64, strict bool) (domain.ScalerParams, error) {
	if len(rows) == 0 {
		return domain.ScalerParams{}, fmt.Errorf("%w: no rows to fit scaler", domain.ErrInvalidInput)
	}

	params := domain.ScalerParams{
		Columns: append([]string(nil), columns...),
		Means:   make([]float64, len(columns)),
		Stds:    make([]float64, len(columns)),
	}

	n := float64(len(rows))
	for col := range columns {
		var sum float64
		for _, row := range rows {
			sum += row[col]
		}
		mean := sum / n

		var sq float64
		for _, row := range rows {
			d := row[col] - mean
			sq += d * d
		}
		std := math.Sqrt(sq / n)

		if std == 0 {
			if strict {
				return domain.ScalerParams{}, fmt.Errorf("%w: feature %q has a single distinct value", domain.ErrZeroVariance, columns[col])
			}
			std = 1
		}

		params.Means[col] = mean
		params.Stds[col] = std
	}

	return params, nil
}

// ApplyScaler standardizes rows with frozen parameters. The input is never
// mutated.
func ApplyScaler(params domain.ScalerParams, rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = ApplyScalerRow(params, row)
	}
	return out
}

// ApplyScalerRow standardizes a single row with frozen parameters.
func ApplyScalerRow(params domain.ScalerParams, row []float64) []float64 {
	out := make([]float64, len(row))
	for col := range row {
		out[col] = (row[col] - params.Means[col]) / params.Stds[col]
	}
	return out
}
