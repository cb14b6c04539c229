package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/quality"
	"github.com/opensource-finance/kestrel/internal/rfm"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// GlobalTenantID is used for quality rules and gates that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *quality.Engine
	gateEngine *quality.GateEngine
	runner     *pipeline.Runner
	scoring    *scoring.Service
	rfm        *rfm.Service
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *quality.Engine, gateEngine *quality.GateEngine, runner *pipeline.Runner, scoringService *scoring.Service, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     engine,
		gateEngine: gateEngine,
		runner:     runner,
		scoring:    scoringService,
		rfm:        rfm.NewService(repo, 4),
		version:    version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// IngestResponse is the response for POST /transactions.
type IngestResponse struct {
	TxID     string `json:"txId"`
	Status   string `json:"status"`
	Metadata struct {
		TraceID  string `json:"traceId"`
		IngestMs int64  `json:"ingestMs"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

// IngestTransaction handles POST /transactions: it stores one ledger row and
// announces it on the bus.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId is required",
		})
		return
	}
	if req.Amount.Currency == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount.currency is required",
		})
		return
	}

	tx := req.ToTransaction()
	tx.ID = uuid.New().String()
	tx.TenantID = tenantID

	if err := h.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
		slog.Error("failed to save transaction", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transaction",
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(tx)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicTransactionIngested, payload); err != nil {
			slog.Error("failed to publish ingest event", "tx_id", tx.ID, "error", err)
		}
	}

	resp := IngestResponse{
		TxID:   tx.ID,
		Status: "ingested",
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.IngestMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusCreated, resp)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// RunPipeline handles POST /pipeline/run: it runs the full aggregate,
// segment, fit, and freeze sequence over the tenant's ledger.
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.runner == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "pipeline runner not available",
		})
		return
	}

	result, err := h.runner.Run(ctx, tenantID)
	if err != nil {
		slog.Error("pipeline run failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, pipelineErrorStatus(err), map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// pipelineErrorStatus maps pipeline failures to HTTP status codes. Data and
// degeneracy problems are the caller's to fix, so they are 4xx.
func pipelineErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDataQuality),
		errors.Is(err, domain.ErrDegenerate),
		errors.Is(err, domain.ErrZeroVariance),
		errors.Is(err, domain.ErrSingleClass):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrFrozen):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ListArtifacts returns all frozen artifact bundles for the tenant,
// newest first.
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	bundles, err := h.repo.ListArtifactBundles(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list artifact bundles", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list artifact bundles",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"artifacts": bundles,
		"count":     len(bundles),
	})
}

// GetArtifact retrieves a frozen artifact bundle by version.
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	version := chi.URLParam(r, "version")

	if version == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "artifact version is required",
		})
		return
	}

	bundle, err := h.repo.GetArtifactBundle(ctx, tenantID, version)
	if err != nil {
		slog.Error("failed to get artifact bundle", "version", version, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "artifact bundle not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}

// GetRFMSummary retrieves the latest RFM summary for a customer.
func (h *Handler) GetRFMSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	customerID := chi.URLParam(r, "customerId")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	summary, err := h.repo.GetRFMSummary(ctx, tenantID, customerID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rfm summary not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// PreviewRFM computes a customer's RFM summary live from the current ledger,
// without waiting for a pipeline run. Useful for inspecting a customer before
// the next re-fit; the persisted summary under /rfm stays authoritative.
func (h *Handler) PreviewRFM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	customerID := chi.URLParam(r, "customerId")

	windowDays := 0
	if raw := r.URL.Query().Get("windowDays"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "windowDays must be a non-negative integer",
			})
			return
		}
		windowDays = parsed
	}

	summaries, report, err := h.rfm.BuildSummaries(ctx, tenantID, time.Time{}, windowDays)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			status = http.StatusBadRequest
		case errors.Is(err, domain.ErrDataQuality):
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	for i := range summaries {
		if summaries[i].CustomerID == customerID {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"summary":       summaries[i],
				"qualityIssues": len(report.Issues),
			})
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "customer has no transactions in the window",
	})
}

// GetSegment retrieves the latest segment assignment for a customer.
func (h *Handler) GetSegment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	customerID := chi.URLParam(r, "customerId")

	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	assignment, err := h.repo.GetSegmentAssignment(ctx, tenantID, customerID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "segment assignment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assignment)
}

// CreateModelRequest is the request body for registering model parameters.
type CreateModelRequest struct {
	Version       string             `json:"version"`
	BundleVersion string             `json:"bundleVersion"`
	Intercept     float64            `json:"intercept"`
	Coefficients  map[string]float64 `json:"coefficients"`
}

// CreateModel registers externally fitted logistic model parameters. The
// coefficients must index columns of the named bundle, which must exist.
func (h *Handler) CreateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Version == "" || req.BundleVersion == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "version and bundleVersion are required",
		})
		return
	}
	if len(req.Coefficients) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one coefficient is required",
		})
		return
	}

	// The referenced bundle must exist before a model can point at it.
	if _, err := h.repo.GetArtifactBundle(ctx, tenantID, req.BundleVersion); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "bundleVersion does not name an existing artifact bundle",
		})
		return
	}

	model := &domain.ModelParams{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Version:       req.Version,
		BundleVersion: req.BundleVersion,
		Intercept:     req.Intercept,
		Coefficients:  req.Coefficients,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.repo.SaveModelParams(ctx, tenantID, model); err != nil {
		slog.Error("failed to save model params", "version", model.Version, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save model params",
		})
		return
	}

	slog.Info("model params registered",
		"version", model.Version,
		"bundle_version", model.BundleVersion,
		"tenant_id", tenantID,
	)
	writeJSON(w, http.StatusCreated, model)
}

// GetModel retrieves model parameters by version.
func (h *Handler) GetModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	version := chi.URLParam(r, "version")

	if version == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "model version is required",
		})
		return
	}

	model, err := h.repo.GetModelParams(ctx, tenantID, version)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "model params not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, model)
}

// Score handles POST /score: a synchronous score over the frozen artifacts.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	req.TenantID = tenantID

	if req.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId is required",
		})
		return
	}

	result, err := h.scoring.Score(ctx, &req, traceID)
	if err != nil {
		slog.Error("scoring failed",
			"customer_id", req.CustomerID,
			"tenant_id", tenantID,
			"error", err,
		)
		if errors.Is(err, domain.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetScore retrieves a past score event by ID.
func (h *Handler) GetScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	scoreID := chi.URLParam(r, "id")

	if scoreID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score id is required",
		})
		return
	}

	result, err := h.repo.GetScoreResult(ctx, tenantID, scoreID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "score result not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListQualityRules returns all loaded quality rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /quality/rules/reload.
func (h *Handler) ListQualityRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetQualityRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetQualityRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateQualityRuleRequest is the request body for creating a quality rule.
type CreateQualityRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Expression  string  `json:"expression"`
	Severity    string  `json:"severity"`
	Weight      float64 `json:"weight"`
	Enabled     bool    `json:"enabled"`
}

// CreateQualityRule creates a new quality rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// After saving, call POST /quality/rules/reload to hot-reload into the engine.
func (h *Handler) CreateQualityRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateQualityRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityWarn
	}
	if severity != domain.SeverityWarn && severity != domain.SeverityReject {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "severity must be 'warn' or 'reject'",
		})
		return
	}

	rule := &domain.QualityRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Severity:    severity,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveQualityRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save quality rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("quality rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /quality/rules/reload to apply changes.",
	})
}

// ReloadQualityRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadQualityRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListQualityRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list quality rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload quality rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("quality rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// CreateQualityGateRequest is the request body for creating a quality gate.
type CreateQualityGateRequest struct {
	ID             string                  `json:"id"`
	Name           string                  `json:"name"`
	Description    string                  `json:"description,omitempty"`
	Rules          []domain.GateRuleWeight `json:"rules"`
	BlockThreshold float64                 `json:"blockThreshold"`
	Enabled        bool                    `json:"enabled"`
}

// ListQualityGates returns all loaded quality gates.
func (h *Handler) ListQualityGates(w http.ResponseWriter, r *http.Request) {
	if h.gateEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "gate engine not available",
		})
		return
	}

	gates := h.gateEngine.GetLoadedGates()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"gates":  gates,
		"count":  len(gates),
		"source": "database",
	})
}

// CreateQualityGate creates a new quality gate and saves it to the database.
func (h *Handler) CreateQualityGate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateQualityGateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	if len(req.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one rule is required",
		})
		return
	}

	// Validate rules exist in the engine and weights are sane
	loadedRules := h.engine.GetLoadedRules()
	ruleIDSet := make(map[string]bool, len(loadedRules))
	for _, lr := range loadedRules {
		ruleIDSet[lr.ID] = true
	}

	var totalWeight float64
	for _, rule := range req.Rules {
		if rule.RuleID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "ruleId cannot be empty",
			})
			return
		}
		if !ruleIDSet[rule.RuleID] {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "ruleId '" + rule.RuleID + "' does not exist in the rule engine",
			})
			return
		}
		if rule.Weight < 0 || rule.Weight > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "rule weight must be between 0 and 1",
			})
			return
		}
		totalWeight += rule.Weight
	}

	// Warn if weights don't sum to approximately 1.0 (allow 0.01 tolerance)
	if totalWeight < 0.99 || totalWeight > 1.01 {
		slog.Warn("gate weights do not sum to 1.0",
			"gate_id", req.ID,
			"total_weight", totalWeight,
		)
	}

	// Threshold must be > 0 to avoid blocking every run
	if req.BlockThreshold <= 0 || req.BlockThreshold > 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "blockThreshold must be between 0 (exclusive) and 1",
		})
		return
	}

	gate := &domain.QualityGate{
		ID:             req.ID,
		TenantID:       GlobalTenantID,
		Name:           req.Name,
		Description:    req.Description,
		Version:        "1.0.0",
		Rules:          req.Rules,
		BlockThreshold: req.BlockThreshold,
		Enabled:        req.Enabled,
	}

	if err := h.repo.SaveQualityGate(ctx, GlobalTenantID, gate); err != nil {
		slog.Error("failed to save quality gate", "id", gate.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save gate",
		})
		return
	}

	slog.Info("quality gate created", "id", gate.ID, "name", gate.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"gate":    gate,
		"message": "Gate created. Call POST /quality/gates/reload to apply changes.",
	})
}

// DeleteQualityGate deletes a gate and auto-reloads the gate engine.
func (h *Handler) DeleteQualityGate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gateID := chi.URLParam(r, "id")

	if gateID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "gate id is required",
		})
		return
	}

	if err := h.repo.DeleteQualityGate(ctx, GlobalTenantID, gateID); err != nil {
		slog.Error("failed to delete quality gate", "id", gateID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "gate not found",
		})
		return
	}

	// Auto-reload gate engine after delete
	if h.gateEngine != nil {
		dbGates, err := h.repo.ListQualityGates(ctx, GlobalTenantID)
		if err != nil {
			slog.Error("failed to reload gates after delete", "error", err)
		} else {
			h.gateEngine.ReloadGates(dbGates)
			slog.Info("gates auto-reloaded after delete", "count", len(dbGates))
		}
	}

	slog.Info("quality gate deleted", "id", gateID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Gate deleted and engine reloaded.",
	})
}

// ReloadQualityGates reloads all gates from the database into the engine.
func (h *Handler) ReloadQualityGates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.gateEngine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "gate engine not available",
		})
		return
	}

	dbGates, err := h.repo.ListQualityGates(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list quality gates from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load gates from database",
		})
		return
	}

	h.gateEngine.ReloadGates(dbGates)

	slog.Info("quality gates reloaded from database", "count", len(dbGates))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "gates reloaded successfully",
		"count":   len(dbGates),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
