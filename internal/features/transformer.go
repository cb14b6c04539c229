package features

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// FitConfig controls one transformer fit.
type FitConfig struct {
	TenantID    string
	Version     string
	WoEBins     int
	IVThreshold float64

	// Segmentation provenance recorded into the bundle for audit.
	RFMScaler       domain.ScalerParams
	Centroids       []domain.Centroid
	HighRiskCluster int
	Seed            int64
	K               int
}

// Fit fits the complete feature transform against labeled training rows and
// returns a frozen artifact bundle. Every fitted statistic (imputer fills,
// vocabularies, scaling parameters, bin maps) is computed from these rows
// only; inference-time data can never leak into it because application goes
// through Apply, which performs no fitting.
func Fit(schema domain.FeatureSchema, rows []domain.RawRow, labels map[string]bool, cfg FitConfig) (*domain.ArtifactBundle, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to fit", domain.ErrInvalidInput)
	}
	if err := rejectUndeclared(schema, rows); err != nil {
		return nil, err
	}

	rowLabels := make([]bool, len(rows))
	for i, row := range rows {
		label, ok := labels[row.CustomerID]
		if !ok {
			return nil, fmt.Errorf("%w: customer %q has no proxy label", domain.ErrInvalidInput, row.CustomerID)
		}
		rowLabels[i] = label
	}

	bundle := &domain.ArtifactBundle{
		ID:              uuid.New().String(),
		TenantID:        cfg.TenantID,
		Version:         cfg.Version,
		Schema:          schema,
		RFMScaler:       cfg.RFMScaler,
		Centroids:       cfg.Centroids,
		HighRiskCluster: cfg.HighRiskCluster,
		Seed:            cfg.Seed,
		K:               cfg.K,
		Imputers:        make(map[string]domain.ImputerParams),
		Encoders:        make(map[string]domain.EncoderMap),
		BinMaps:         make(map[string]domain.BinMap),
		CreatedAt:       time.Now().UTC(),
	}
	if bundle.Version == "" {
		bundle.Version = bundle.ID
	}

	numericNames := schema.NumericNames()
	numericCols := make(map[string][]float64, len(numericNames))

	for _, name := range numericNames {
		present := make([]float64, 0, len(rows))
		for _, row := range rows {
			if v, ok := numericValue(row, name); ok {
				present = append(present, v)
			}
		}
		imp, err := FitNumericImputer(present)
		if err != nil {
			return nil, fmt.Errorf("feature %q: %w", name, err)
		}
		bundle.Imputers[name] = imp

		col := make([]float64, len(rows))
		for i, row := range rows {
			v, ok := numericValue(row, name)
			if !ok {
				v = imp.NumericFill
			}
			col[i] = v
		}
		numericCols[name] = col
	}

	catCols := make(map[string][]string)
	for _, name := range schema.CategoricalNames() {
		imp := FitCategoricalImputer()
		bundle.Imputers[name] = imp

		col := make([]string, len(rows))
		for i, row := range rows {
			v, ok := categoryValue(row, name)
			if !ok {
				v = imp.CategoryFill
			}
			col[i] = v
		}
		if distinctStrings(col) < 2 {
			return nil, fmt.Errorf("%w: feature %q has a single distinct value", domain.ErrZeroVariance, name)
		}
		bundle.Encoders[name] = FitEncoder(col)
		catCols[name] = col
	}

	// A flat predictor halts the fit rather than producing a silently
	// degenerate model input. Non-WoE numerics (the raw calendar fields) are
	// tolerated flat: a ledger spanning a single year is normal, and the
	// non-strict scaler turns the constant column into zeros.
	for _, spec := range schema.Features {
		if spec.Kind != domain.FeatureNumeric || !spec.WoE {
			continue
		}
		if distinctFloats(numericCols[spec.Name]) < 2 {
			return nil, fmt.Errorf("%w: feature %q has a single distinct value", domain.ErrZeroVariance, spec.Name)
		}
	}

	numericMatrix := make([][]float64, len(rows))
	for i := range rows {
		numericMatrix[i] = make([]float64, len(numericNames))
		for j, name := range numericNames {
			numericMatrix[i][j] = numericCols[name][i]
		}
	}
	scaler, err := FitScaler(numericNames, numericMatrix, false)
	if err != nil {
		return nil, err
	}
	bundle.Scaler = scaler

	for _, spec := range schema.Features {
		if !spec.WoE {
			continue
		}
		var bm domain.BinMap
		switch spec.Kind {
		case domain.FeatureNumeric:
			bm, err = FitNumericBinMap(spec.Name, numericCols[spec.Name], rowLabels, cfg.WoEBins)
		case domain.FeatureCategorical:
			bm, err = FitCategoricalBinMap(spec.Name, catCols[spec.Name], rowLabels)
		}
		if err != nil {
			return nil, err
		}
		bundle.BinMaps[spec.Name] = bm

		if bm.IV < cfg.IVThreshold {
			bundle.WeakFeatures = append(bundle.WeakFeatures, spec.Name)
		}
	}

	bundle.Frozen = true
	return bundle, nil
}

// Columns returns the transformed column layout of a bundle: scaled
// numerics, encoded categoricals, then WoE columns, in declaration order.
func Columns(bundle *domain.ArtifactBundle) []string {
	var cols []string
	for _, spec := range bundle.Schema.Features {
		if spec.Kind == domain.FeatureNumeric {
			cols = append(cols, spec.Name)
		}
	}
	for _, spec := range bundle.Schema.Features {
		if spec.Kind == domain.FeatureCategorical {
			cols = append(cols, spec.Name+"_code")
		}
	}
	for _, spec := range bundle.Schema.Features {
		if spec.WoE {
			cols = append(cols, spec.Name+"_woe")
		}
	}
	return cols
}

// Apply runs frozen transforms over raw rows and assembles the feature
// matrix. labels may be nil (inference); when present, each row's proxy
// label is attached for training export. The bundle is read-only throughout.
func Apply(bundle *domain.ArtifactBundle, rows []domain.RawRow, labels map[string]bool) (*domain.FeatureMatrix, error) {
	if !bundle.Frozen {
		return nil, fmt.Errorf("%w: refusing to apply an unfitted bundle", domain.ErrInvalidInput)
	}

	matrix := &domain.FeatureMatrix{
		Columns:       Columns(bundle),
		Rows:          make([]domain.FeatureRow, 0, len(rows)),
		BundleVersion: bundle.Version,
	}

	for _, row := range rows {
		fr, err := ApplyRow(bundle, row)
		if err != nil {
			return nil, err
		}
		if labels != nil {
			if label, ok := labels[row.CustomerID]; ok {
				l := label
				fr.IsHighRisk = &l
			}
		}
		matrix.Rows = append(matrix.Rows, *fr)
	}

	return matrix, nil
}

// ApplyRow transforms one raw row with the frozen bundle.
func ApplyRow(bundle *domain.ArtifactBundle, row domain.RawRow) (*domain.FeatureRow, error) {
	if err := rejectUndeclared(bundle.Schema, []domain.RawRow{row}); err != nil {
		return nil, err
	}

	numericNames := bundle.Scaler.Columns
	rawNumeric := make([]float64, len(numericNames))
	for j, name := range numericNames {
		v, ok := numericValue(row, name)
		if !ok {
			v = bundle.Imputers[name].NumericFill
		}
		rawNumeric[j] = v
	}
	scaled := ApplyScalerRow(bundle.Scaler, rawNumeric)

	imputedCat := make(map[string]string)
	for _, name := range bundle.Schema.CategoricalNames() {
		v, ok := categoryValue(row, name)
		if !ok {
			v = bundle.Imputers[name].CategoryFill
		}
		imputedCat[name] = v
	}

	cols := Columns(bundle)
	values := make([]float64, 0, len(cols))
	values = append(values, scaled...)

	for _, name := range bundle.Schema.CategoricalNames() {
		values = append(values, float64(bundle.Encoders[name].Code(imputedCat[name])))
	}

	for _, spec := range bundle.Schema.Features {
		if !spec.WoE {
			continue
		}
		bm := bundle.BinMaps[spec.Name]
		switch spec.Kind {
		case domain.FeatureNumeric:
			idx := indexOf(numericNames, spec.Name)
			values = append(values, ApplyBinMap(bm, rawNumeric[idx]))
		case domain.FeatureCategorical:
			values = append(values, ApplyBinMap(bm, imputedCat[spec.Name]))
		}
	}

	return &domain.FeatureRow{
		CustomerID: row.CustomerID,
		TenantID:   bundle.TenantID,
		Columns:    cols,
		Values:     values,
	}, nil
}

// rejectUndeclared fails on any column the schema does not declare.
func rejectUndeclared(schema domain.FeatureSchema, rows []domain.RawRow) error {
	for _, row := range rows {
		for name := range row.Values {
			if _, ok := schema.Spec(name); !ok {
				return fmt.Errorf("%w: row for customer %q carries undeclared column %q", domain.ErrInvalidInput, row.CustomerID, name)
			}
		}
	}
	return nil
}

func numericValue(row domain.RawRow, name string) (float64, bool) {
	raw, ok := row.Values[name]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func categoryValue(row domain.RawRow, name string) (string, bool) {
	raw, ok := row.Values[name]
	if !ok || raw == nil {
		return "", false
	}
	if s, ok := raw.(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func distinctFloats(values []float64) int {
	seen := make(map[float64]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}
	return len(seen)
}

func distinctStrings(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[v] = true
	}
	return len(seen)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
