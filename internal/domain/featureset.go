package domain

import "fmt"

// FeatureKind is the semantic type of a declared feature.
type FeatureKind string

const (
	FeatureNumeric     FeatureKind = "numeric"
	FeatureCategorical FeatureKind = "categorical"
)

// FeatureSpec declares one feature: its name, semantic kind, and whether a
// WoE-binned version should be fit for it.
type FeatureSpec struct {
	Name string      `json:"name"`
	Kind FeatureKind `json:"kind"`
	WoE  bool        `json:"woe"`
}

// FeatureSchema is the explicit declaration of every column the transformer
// accepts. Rows carrying undeclared columns are rejected at pipeline entry
// rather than silently coerced.
type FeatureSchema struct {
	Features []FeatureSpec `json:"features"`
}

// Spec returns the declaration for a feature name.
func (s FeatureSchema) Spec(name string) (FeatureSpec, bool) {
	for _, f := range s.Features {
		if f.Name == name {
			return f, true
		}
	}
	return FeatureSpec{}, false
}

// NumericNames returns declared numeric feature names in declaration order.
func (s FeatureSchema) NumericNames() []string {
	var names []string
	for _, f := range s.Features {
		if f.Kind == FeatureNumeric {
			names = append(names, f.Name)
		}
	}
	return names
}

// CategoricalNames returns declared categorical feature names in declaration order.
func (s FeatureSchema) CategoricalNames() []string {
	var names []string
	for _, f := range s.Features {
		if f.Kind == FeatureCategorical {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks the schema for duplicate or malformed declarations.
func (s FeatureSchema) Validate() error {
	if len(s.Features) == 0 {
		return fmt.Errorf("%w: schema declares no features", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(s.Features))
	for _, f := range s.Features {
		if f.Name == "" {
			return fmt.Errorf("%w: feature with empty name", ErrInvalidInput)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate feature %q", ErrInvalidInput, f.Name)
		}
		seen[f.Name] = true
		if f.Kind != FeatureNumeric && f.Kind != FeatureCategorical {
			return fmt.Errorf("%w: feature %q has unknown kind %q", ErrInvalidInput, f.Name, f.Kind)
		}
	}
	return nil
}

// RawRow is one customer's untransformed attributes keyed by feature name.
// Numeric features are float64, categorical features string. A nil entry
// marks a missing value to be imputed.
type RawRow struct {
	CustomerID string                 `json:"customerId"`
	Values     map[string]interface{} `json:"values"`
}

// FeatureRow is one customer's fully transformed model-ready row.
type FeatureRow struct {
	CustomerID string `json:"customerId"`
	TenantID   string `json:"tenantId,omitempty"`

	// Columns and Values are parallel: scaled numerics, encoded
	// categoricals, then WoE columns, in bundle column order.
	Columns []string  `json:"columns"`
	Values  []float64 `json:"values"`

	// IsHighRisk carries the proxy label for training-time rows. Nil at
	// inference, where no label exists.
	IsHighRisk *bool `json:"isHighRisk,omitempty"`
}

// Value returns the transformed value for a column name.
func (r *FeatureRow) Value(column string) (float64, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return 0, false
}

// FeatureMatrix is the transformed rows for a customer population, one row
// per customer, sharing a single column layout.
type FeatureMatrix struct {
	Columns []string     `json:"columns"`
	Rows    []FeatureRow `json:"rows"`

	// BundleVersion names the frozen artifact the matrix was produced with.
	BundleVersion string `json:"bundleVersion"`
}
