// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction ledger operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	GetTransactionsByCustomer(ctx context.Context, tenantID string, customerID string, since time.Time) ([]*Transaction, error)
	ListTransactions(ctx context.Context, tenantID string, since time.Time) ([]*Transaction, error)

	// RFM summary table (replaced wholesale by each pipeline run)
	SaveRFMSummaries(ctx context.Context, tenantID string, runVersion string, summaries []RFMSummary) error
	GetRFMSummary(ctx context.Context, tenantID string, customerID string) (*RFMSummary, error)

	// Segment assignment table
	SaveSegmentAssignments(ctx context.Context, tenantID string, runVersion string, assignments []SegmentAssignment) error
	GetSegmentAssignment(ctx context.Context, tenantID string, customerID string) (*SegmentAssignment, error)

	// Feature matrix rows
	SaveFeatureRows(ctx context.Context, tenantID string, bundleVersion string, rows []FeatureRow) error
	GetFeatureRow(ctx context.Context, tenantID string, customerID string, bundleVersion string) (*FeatureRow, error)

	// Frozen artifact bundles (immutable, versioned)
	SaveArtifactBundle(ctx context.Context, tenantID string, bundle *ArtifactBundle) error
	GetArtifactBundle(ctx context.Context, tenantID string, version string) (*ArtifactBundle, error)
	LatestArtifactBundle(ctx context.Context, tenantID string) (*ArtifactBundle, error)
	ListArtifactBundles(ctx context.Context, tenantID string) ([]*ArtifactBundle, error)

	// Externally fitted model parameters
	SaveModelParams(ctx context.Context, tenantID string, model *ModelParams) error
	GetModelParams(ctx context.Context, tenantID string, version string) (*ModelParams, error)
	LatestModelParams(ctx context.Context, tenantID string) (*ModelParams, error)

	// Quality rule configuration
	SaveQualityRule(ctx context.Context, tenantID string, rule *QualityRule) error
	GetQualityRule(ctx context.Context, tenantID string, ruleID string) (*QualityRule, error)
	ListQualityRules(ctx context.Context, tenantID string) ([]*QualityRule, error)

	// Quality gate configuration
	SaveQualityGate(ctx context.Context, tenantID string, gate *QualityGate) error
	ListQualityGates(ctx context.Context, tenantID string) ([]*QualityGate, error)
	DeleteQualityGate(ctx context.Context, tenantID string, gateID string) error

	// Quality violations (per-record audit trail)
	SaveQualityResults(ctx context.Context, tenantID string, results []QualityResult) error

	// Score events
	SaveScoreResult(ctx context.Context, tenantID string, result *ScoreResult) error
	GetScoreResult(ctx context.Context, tenantID string, scoreID string) (*ScoreResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDb" yaml:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
