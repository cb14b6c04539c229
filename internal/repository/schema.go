package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    category TEXT,
    channel TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
`

// schemaRFMSummaries holds the latest per-customer RFM snapshot. Each
// pipeline run replaces a tenant's rows wholesale.
const schemaRFMSummaries = `
CREATE TABLE IF NOT EXISTS rfm_summaries (
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    run_version TEXT NOT NULL,
    recency REAL NOT NULL,
    frequency REAL NOT NULL,
    monetary REAL NOT NULL,
    snapshot_date TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, customer_id)
);
`

const schemaSegmentAssignments = `
CREATE TABLE IF NOT EXISTS segment_assignments (
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    run_version TEXT NOT NULL,
    cluster_id INTEGER NOT NULL,
    is_high_risk INTEGER NOT NULL,
    PRIMARY KEY (tenant_id, customer_id)
);

CREATE INDEX IF NOT EXISTS idx_segments_high_risk ON segment_assignments(tenant_id, is_high_risk);
`

// schemaFeatureRows stores the transformed model-ready rows keyed by the
// bundle version that produced them. Column layout and values are stored as
// JSON since the layout varies per bundle.
const schemaFeatureRows = `
CREATE TABLE IF NOT EXISTS feature_rows (
    tenant_id TEXT NOT NULL,
    bundle_version TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    columns TEXT NOT NULL,
    values_json TEXT NOT NULL,
    is_high_risk INTEGER,
    PRIMARY KEY (tenant_id, bundle_version, customer_id)
);
`

// schemaArtifacts stores frozen artifact bundles as opaque JSON payloads.
// Rows are insert-only; bundles are never updated in place.
const schemaArtifacts = `
CREATE TABLE IF NOT EXISTS artifacts (
    tenant_id TEXT NOT NULL,
    version TEXT NOT NULL,
    id TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_created ON artifacts(tenant_id, created_at);
`

const schemaModels = `
CREATE TABLE IF NOT EXISTS models (
    tenant_id TEXT NOT NULL,
    version TEXT NOT NULL,
    id TEXT NOT NULL,
    bundle_version TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_models_created ON models(tenant_id, created_at);
`

const schemaQualityRules = `
CREATE TABLE IF NOT EXISTS quality_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    severity TEXT NOT NULL DEFAULT 'warn',
    weight REAL NOT NULL DEFAULT 1.0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_quality_rules_tenant ON quality_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_quality_rules_enabled ON quality_rules(tenant_id, enabled);
`

const schemaQualityGates = `
CREATE TABLE IF NOT EXISTS quality_gates (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    rules TEXT NOT NULL,
    block_threshold REAL NOT NULL DEFAULT 0.2,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_quality_gates_tenant ON quality_gates(tenant_id);
CREATE INDEX IF NOT EXISTS idx_quality_gates_enabled ON quality_gates(tenant_id, enabled);
`

// schemaQualityResults is the per-record violation audit trail.
const schemaQualityResults = `
CREATE TABLE IF NOT EXISTS quality_results (
    tenant_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    customer_id TEXT,
    severity TEXT NOT NULL,
    reason TEXT,
    score REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quality_results_tenant ON quality_results(tenant_id);
CREATE INDEX IF NOT EXISTS idx_quality_results_rule ON quality_results(tenant_id, rule_id);
CREATE INDEX IF NOT EXISTS idx_quality_results_tx ON quality_results(tenant_id, tx_id);
`

const schemaScoreEvents = `
CREATE TABLE IF NOT EXISTS score_events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    probability REAL NOT NULL,
    credit_score INTEGER NOT NULL,
    bundle_version TEXT NOT NULL,
    model_version TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_events_tenant ON score_events(tenant_id);
CREATE INDEX IF NOT EXISTS idx_score_events_customer ON score_events(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_score_events_timestamp ON score_events(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRFMSummaries,
		schemaSegmentAssignments,
		schemaFeatureRows,
		schemaArtifacts,
		schemaModels,
		schemaQualityRules,
		schemaQualityGates,
		schemaQualityResults,
		schemaScoreEvents,
	}
}
