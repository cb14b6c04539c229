// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a ledger row with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	query := `
		INSERT INTO transactions (
			id, tenant_id, customer_id, amount, currency,
			category, channel, timestamp, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.CustomerID,
		tx.Amount, tx.Currency,
		tx.Category, tx.Channel,
		tx.Timestamp, tx.CreatedAt,
		string(metadata),
	)
	return err
}

// GetTransaction retrieves a ledger row by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, customer_id, amount, currency,
			   category, channel, timestamp, created_at, metadata
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	var tx domain.Transaction
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(
		&tx.ID, &tx.TenantID, &tx.CustomerID,
		&tx.Amount, &tx.Currency,
		&tx.Category, &tx.Channel,
		&tx.Timestamp, &tx.CreatedAt,
		&metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		json.Unmarshal([]byte(metadata), &tx.Metadata)
	}

	return &tx, nil
}

// GetTransactionsByCustomer retrieves one customer's transactions with tenant isolation.
func (r *SQLRepository) GetTransactionsByCustomer(ctx context.Context, tenantID string, customerID string, since time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, customer_id, amount, currency,
			   category, channel, timestamp, created_at, metadata
		FROM transactions
		WHERE tenant_id = ? AND customer_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListTransactions retrieves a tenant's full ledger since a cutoff, ordered
// by timestamp ascending so pipeline runs see rows in event order.
func (r *SQLRepository) ListTransactions(ctx context.Context, tenantID string, since time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, customer_id, amount, currency,
			   category, channel, timestamp, created_at, metadata
		FROM transactions
		WHERE tenant_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var metadata string

		if err := rows.Scan(
			&tx.ID, &tx.TenantID, &tx.CustomerID,
			&tx.Amount, &tx.Currency,
			&tx.Category, &tx.Channel,
			&tx.Timestamp, &tx.CreatedAt,
			&metadata,
		); err != nil {
			return nil, err
		}

		if metadata != "" {
			json.Unmarshal([]byte(metadata), &tx.Metadata)
		}

		transactions = append(transactions, &tx)
	}

	return transactions, rows.Err()
}

// SaveRFMSummaries replaces a tenant's RFM snapshot wholesale inside one
// transaction, so readers never observe a half-written run.
func (r *SQLRepository) SaveRFMSummaries(ctx context.Context, tenantID string, runVersion string, summaries []domain.RFMSummary) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, r.rebind(`DELETE FROM rfm_summaries WHERE tenant_id = ?`), tenantID); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO rfm_summaries (
			tenant_id, customer_id, run_version, recency, frequency, monetary, snapshot_date
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	for _, s := range summaries {
		if _, err := dbTx.ExecContext(ctx, insert,
			tenantID, s.CustomerID, runVersion,
			s.Recency, s.Frequency, s.Monetary, s.SnapshotDate,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetRFMSummary retrieves one customer's latest RFM summary.
func (r *SQLRepository) GetRFMSummary(ctx context.Context, tenantID string, customerID string) (*domain.RFMSummary, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, customer_id, recency, frequency, monetary, snapshot_date
		FROM rfm_summaries
		WHERE tenant_id = ? AND customer_id = ?
	`

	var s domain.RFMSummary
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, customerID).Scan(
		&s.TenantID, &s.CustomerID,
		&s.Recency, &s.Frequency, &s.Monetary, &s.SnapshotDate,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// SaveSegmentAssignments replaces a tenant's segment assignments wholesale.
func (r *SQLRepository) SaveSegmentAssignments(ctx context.Context, tenantID string, runVersion string, assignments []domain.SegmentAssignment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, r.rebind(`DELETE FROM segment_assignments WHERE tenant_id = ?`), tenantID); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO segment_assignments (
			tenant_id, customer_id, run_version, cluster_id, is_high_risk
		) VALUES (?, ?, ?, ?, ?)
	`)

	for _, a := range assignments {
		highRisk := 0
		if a.IsHighRisk {
			highRisk = 1
		}
		if _, err := dbTx.ExecContext(ctx, insert,
			tenantID, a.CustomerID, runVersion, a.ClusterID, highRisk,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetSegmentAssignment retrieves one customer's latest segment assignment.
func (r *SQLRepository) GetSegmentAssignment(ctx context.Context, tenantID string, customerID string) (*domain.SegmentAssignment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, customer_id, cluster_id, is_high_risk
		FROM segment_assignments
		WHERE tenant_id = ? AND customer_id = ?
	`

	var a domain.SegmentAssignment
	var highRisk int
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, customerID).Scan(
		&a.TenantID, &a.CustomerID, &a.ClusterID, &highRisk,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.IsHighRisk = highRisk == 1
	return &a, nil
}

// SaveFeatureRows stores transformed rows for a bundle version.
func (r *SQLRepository) SaveFeatureRows(ctx context.Context, tenantID string, bundleVersion string, featureRows []domain.FeatureRow) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	insert := r.rebind(`
		INSERT INTO feature_rows (
			tenant_id, bundle_version, customer_id, columns, values_json, is_high_risk
		) VALUES (?, ?, ?, ?, ?, ?)
	`)

	for _, row := range featureRows {
		columns, _ := json.Marshal(row.Columns)
		values, _ := json.Marshal(row.Values)

		var label interface{}
		if row.IsHighRisk != nil {
			if *row.IsHighRisk {
				label = 1
			} else {
				label = 0
			}
		}

		if _, err := dbTx.ExecContext(ctx, insert,
			tenantID, bundleVersion, row.CustomerID,
			string(columns), string(values), label,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetFeatureRow retrieves one customer's transformed row for a bundle version.
func (r *SQLRepository) GetFeatureRow(ctx context.Context, tenantID string, customerID string, bundleVersion string) (*domain.FeatureRow, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT tenant_id, customer_id, columns, values_json, is_high_risk
		FROM feature_rows
		WHERE tenant_id = ? AND bundle_version = ? AND customer_id = ?
	`

	var row domain.FeatureRow
	var columns, values string
	var label sql.NullInt64

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, bundleVersion, customerID).Scan(
		&row.TenantID, &row.CustomerID, &columns, &values, &label,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(columns), &row.Columns); err != nil {
		return nil, fmt.Errorf("failed to parse feature columns: %w", err)
	}
	if err := json.Unmarshal([]byte(values), &row.Values); err != nil {
		return nil, fmt.Errorf("failed to parse feature values: %w", err)
	}
	if label.Valid {
		b := label.Int64 == 1
		row.IsHighRisk = &b
	}

	return &row, nil
}

// SaveArtifactBundle stores a frozen bundle. Versions are immutable: writing
// an existing version fails instead of overwriting it.
func (r *SQLRepository) SaveArtifactBundle(ctx context.Context, tenantID string, bundle *domain.ArtifactBundle) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if bundle.Version == "" {
		return fmt.Errorf("%w: bundle version is required", ErrInvalidInput)
	}

	var exists int
	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(1) FROM artifacts WHERE tenant_id = ? AND version = ?`),
		tenantID, bundle.Version,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: artifact version %s already exists", domain.ErrFrozen, bundle.Version)
	}

	payload, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to serialize artifact bundle: %w", err)
	}

	query := `
		INSERT INTO artifacts (tenant_id, version, id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, bundle.Version, bundle.ID, string(payload), bundle.CreatedAt,
	)
	return err
}

// GetArtifactBundle retrieves a bundle by version.
func (r *SQLRepository) GetArtifactBundle(ctx context.Context, tenantID string, version string) (*domain.ArtifactBundle, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM artifacts
		WHERE tenant_id = ? AND version = ?
	`

	return r.scanBundle(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, version))
}

// LatestArtifactBundle retrieves the most recently created bundle.
func (r *SQLRepository) LatestArtifactBundle(ctx context.Context, tenantID string) (*domain.ArtifactBundle, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM artifacts
		WHERE tenant_id = ?
		ORDER BY created_at DESC, version DESC
		LIMIT 1
	`

	return r.scanBundle(r.db.QueryRowContext(ctx, r.rebind(query), tenantID))
}

func (r *SQLRepository) scanBundle(row *sql.Row) (*domain.ArtifactBundle, error) {
	var payload string
	err := row.Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var bundle domain.ArtifactBundle
	if err := json.Unmarshal([]byte(payload), &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse artifact bundle: %w", err)
	}
	return &bundle, nil
}

// ListArtifactBundles retrieves all bundles for a tenant, newest first.
func (r *SQLRepository) ListArtifactBundles(ctx context.Context, tenantID string) ([]*domain.ArtifactBundle, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM artifacts
		WHERE tenant_id = ?
		ORDER BY created_at DESC, version DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []*domain.ArtifactBundle
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var bundle domain.ArtifactBundle
		if err := json.Unmarshal([]byte(payload), &bundle); err != nil {
			return nil, fmt.Errorf("failed to parse artifact bundle: %w", err)
		}
		bundles = append(bundles, &bundle)
	}

	return bundles, rows.Err()
}

// SaveModelParams stores externally fitted model parameters.
func (r *SQLRepository) SaveModelParams(ctx context.Context, tenantID string, model *domain.ModelParams) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if model.Version == "" {
		return fmt.Errorf("%w: model version is required", ErrInvalidInput)
	}
	if model.BundleVersion == "" {
		return fmt.Errorf("%w: model must name its bundle version", ErrInvalidInput)
	}

	payload, err := json.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to serialize model params: %w", err)
	}

	query := `
		INSERT INTO models (tenant_id, version, id, bundle_version, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, model.Version, model.ID, model.BundleVersion, string(payload), model.CreatedAt,
	)
	return err
}

// GetModelParams retrieves model parameters by version.
func (r *SQLRepository) GetModelParams(ctx context.Context, tenantID string, version string) (*domain.ModelParams, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM models
		WHERE tenant_id = ? AND version = ?
	`

	return r.scanModel(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, version))
}

// LatestModelParams retrieves the most recently created model parameters.
func (r *SQLRepository) LatestModelParams(ctx context.Context, tenantID string) (*domain.ModelParams, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM models
		WHERE tenant_id = ?
		ORDER BY created_at DESC, version DESC
		LIMIT 1
	`

	return r.scanModel(r.db.QueryRowContext(ctx, r.rebind(query), tenantID))
}

func (r *SQLRepository) scanModel(row *sql.Row) (*domain.ModelParams, error) {
	var payload string
	err := row.Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var model domain.ModelParams
	if err := json.Unmarshal([]byte(payload), &model); err != nil {
		return nil, fmt.Errorf("failed to parse model params: %w", err)
	}
	return &model, nil
}

// SaveQualityRule stores a quality rule with tenant isolation.
func (r *SQLRepository) SaveQualityRule(ctx context.Context, tenantID string, rule *domain.QualityRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO quality_rules (
			id, tenant_id, name, description, version, expression, severity, weight, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			severity = excluded.severity,
			weight = excluded.weight,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Severity, rule.Weight, enabled,
		now, now,
	)
	return err
}

// GetQualityRule retrieves the latest enabled version of a quality rule.
func (r *SQLRepository) GetQualityRule(ctx context.Context, tenantID string, ruleID string) (*domain.QualityRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, severity, weight, enabled
		FROM quality_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.QualityRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.Severity, &rule.Weight, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListQualityRules retrieves all enabled quality rules for a tenant.
func (r *SQLRepository) ListQualityRules(ctx context.Context, tenantID string) ([]*domain.QualityRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, severity, weight, enabled
		FROM quality_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.QualityRule
	for rows.Next() {
		var rule domain.QualityRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.Severity, &rule.Weight, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveQualityGate stores a quality gate with tenant isolation.
func (r *SQLRepository) SaveQualityGate(ctx context.Context, tenantID string, gate *domain.QualityGate) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	rules, _ := json.Marshal(gate.Rules)

	enabled := 0
	if gate.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO quality_gates (
			id, tenant_id, name, description, version, rules, block_threshold, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			rules = excluded.rules,
			block_threshold = excluded.block_threshold,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		gate.ID, tenantID, gate.Name, gate.Description,
		gate.Version, string(rules), gate.BlockThreshold, enabled,
		now, now,
	)
	return err
}

// ListQualityGates retrieves all enabled quality gates for a tenant.
func (r *SQLRepository) ListQualityGates(ctx context.Context, tenantID string) ([]*domain.QualityGate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, rules, block_threshold, enabled, created_at, updated_at
		FROM quality_gates
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gates []*domain.QualityGate
	for rows.Next() {
		var g domain.QualityGate
		var rules string
		var enabled int

		if err := rows.Scan(
			&g.ID, &g.TenantID, &g.Name, &g.Description,
			&g.Version, &rules, &g.BlockThreshold, &enabled,
			&g.CreatedAt, &g.UpdatedAt,
		); err != nil {
			return nil, err
		}

		g.Enabled = enabled == 1
		if err := json.Unmarshal([]byte(rules), &g.Rules); err != nil {
			return nil, fmt.Errorf("failed to parse gate rules for %s: %w", g.ID, err)
		}
		gates = append(gates, &g)
	}

	return gates, rows.Err()
}

// DeleteQualityGate soft-deletes a gate by setting enabled = 0.
func (r *SQLRepository) DeleteQualityGate(ctx context.Context, tenantID string, gateID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE quality_gates
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, gateID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveQualityResults appends violation records to the audit trail.
func (r *SQLRepository) SaveQualityResults(ctx context.Context, tenantID string, results []domain.QualityResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(results) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	insert := r.rebind(`
		INSERT INTO quality_results (
			tenant_id, rule_id, tx_id, customer_id, severity, reason, score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)

	now := time.Now().UTC()
	for _, res := range results {
		if _, err := dbTx.ExecContext(ctx, insert,
			tenantID, res.RuleID, res.TxID, res.CustomerID,
			res.Severity, res.Reason, res.Score, now,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// SaveScoreResult stores a scoring event with tenant isolation.
func (r *SQLRepository) SaveScoreResult(ctx context.Context, tenantID string, result *domain.ScoreResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(result.Metadata)

	query := `
		INSERT INTO score_events (
			id, tenant_id, customer_id, probability, credit_score,
			bundle_version, model_version, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.CustomerID,
		result.Probability, result.CreditScore,
		result.BundleVersion, result.ModelVersion,
		result.Timestamp, string(metadata),
	)
	return err
}

// GetScoreResult retrieves a scoring event by ID with tenant isolation.
func (r *SQLRepository) GetScoreResult(ctx context.Context, tenantID string, scoreID string) (*domain.ScoreResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, customer_id, probability, credit_score,
			   bundle_version, model_version, timestamp, metadata
		FROM score_events
		WHERE tenant_id = ? AND id = ?
	`

	var result domain.ScoreResult
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, scoreID).Scan(
		&result.ID, &result.TenantID, &result.CustomerID,
		&result.Probability, &result.CreditScore,
		&result.BundleVersion, &result.ModelVersion,
		&result.Timestamp, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(metadata), &result.Metadata)

	return &result, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
