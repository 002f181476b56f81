package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"argus/analysis"
	"argus/core"
	"argus/rulegen"

	"go.uber.org/zap"
)

// writeJSON encodes data with the given status. Encoding failures are only
// logged since the header is already sent.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	writeJSON(w, data, statusCode, a.logger)
}

// decodeBody reads a size-limited JSON body into v and reports the status
// to answer with on failure.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err)
	}
	return http.StatusOK, nil
}

type analyzeRequest struct {
	// Exactly one of BatchID, Logs and Lines must be set.
	BatchID string          `json:"batch_id,omitempty"`
	Logs    []core.LogEntry `json:"logs,omitempty"`
	Lines   []string        `json:"lines,omitempty"`
	Mode    string          `json:"mode,omitempty"`
	Workers int             `json:"workers,omitempty"`
}

func (req *analyzeRequest) sources() int {
	n := 0
	if req.BatchID != "" {
		n++
	}
	if req.Logs != nil {
		n++
	}
	if req.Lines != nil {
		n++
	}
	return n
}

// analyze runs the loaded rule set over a batch.
func (a *API) analyze(w http.ResponseWriter, r *http.Request) {
	if a.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "Analysis is not available", nil, a.logger)
		return
	}

	var req analyzeRequest
	if status, err := a.decodeBody(w, r, &req); err != nil {
		writeError(w, status, err.Error(), err, a.logger)
		return
	}
	if req.sources() != 1 {
		writeError(w, http.StatusBadRequest, "Exactly one of batch_id, logs or lines is required", nil, a.logger)
		return
	}
	if req.Workers < 0 {
		writeError(w, http.StatusBadRequest, "workers must not be negative", nil, a.logger)
		return
	}

	mode := a.config.ExecutionMode()
	if req.Mode != "" {
		parsed, err := core.ParseExecutionMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), err, a.logger)
			return
		}
		mode = parsed
	}
	run := analysis.Request{Mode: mode, Workers: req.Workers, Rules: a.rules}

	var (
		m   *core.Metrics
		err error
	)
	switch {
	case req.BatchID != "":
		f, status, openErr := a.openBatch(req.BatchID)
		if openErr != nil {
			writeError(w, status, openErr.Error(), nil, a.logger)
			return
		}
		m, err = a.analyzer.AnalyzeReader(r.Context(), f, run)
		f.Close()
	case req.Logs != nil:
		if i, reason := normalizeEntries(req.Logs); reason != "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("logs[%d]: %s", i, reason), nil, a.logger)
			return
		}
		m, err = a.analyzer.AnalyzeRecords(r.Context(), req.Logs, run)
	default:
		m, err = a.analyzer.AnalyzeLines(r.Context(), req.Lines, run)
	}

	if err != nil {
		writeError(w, statusForRunError(err), err.Error(), err, a.logger)
		return
	}
	a.respondJSON(w, m, http.StatusOK)
}

// openBatch opens a batch file under api.batch_dir. Returned errors are
// safe to show to clients; causes are logged here.
func (a *API) openBatch(batchID string) (*os.File, int, error) {
	path, err := resolveBatchPath(a.config.API.BatchDir, batchID)
	if err != nil {
		a.logger.Warnw("Rejected batch id", "batch_id", batchID, "error", err)
		return nil, http.StatusBadRequest, errors.New("invalid batch_id")
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, http.StatusNotFound, fmt.Errorf("batch %s not found", batchID)
		}
		a.logger.Errorw("Failed to open batch", "batch_id", batchID, "error", err)
		return nil, http.StatusInternalServerError, errors.New("failed to open batch")
	}
	return f, http.StatusOK, nil
}

// normalizeEntries brings JSON records to the shape parsed lines have:
// UTC timestamps, a default event type and non-nil details. It reports the
// first record missing a timestamp or address.
func normalizeEntries(entries []core.LogEntry) (int, string) {
	for i := range entries {
		e := &entries[i]
		switch {
		case e.Timestamp.IsZero():
			return i, "timestamp is required"
		case strings.TrimSpace(e.IPAddress) == "":
			return i, "ip_address is required"
		}
		e.Timestamp = e.Timestamp.UTC()
		if strings.TrimSpace(e.EventType) == "" {
			e.EventType = core.DefaultEventType
		}
		if e.Details == nil {
			e.Details = map[string]string{}
		}
	}
	return 0, ""
}

func statusForRunError(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, analysis.ErrNoDialer):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrWorkerFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// getRules lists the rule set analyses run against.
func (a *API) getRules(w http.ResponseWriter, r *http.Request) {
	rules := a.rules
	if rules == nil {
		rules = []core.Rule{}
	}
	a.respondJSON(w, rules, http.StatusOK)
}

type generateRuleRequest struct {
	Description string `json:"description"`
}

// generateRuleResponse always carries both keys; the unused one is null.
type generateRuleResponse struct {
	Rule  *core.Rule `json:"rule"`
	Error *string    `json:"error"`
}

func ruleError(msg string) generateRuleResponse {
	return generateRuleResponse{Error: &msg}
}

// generateRule turns a description into a rule.
func (a *API) generateRule(w http.ResponseWriter, r *http.Request) {
	if a.generator == nil {
		a.respondJSON(w, ruleError("rule generation is not configured"), http.StatusServiceUnavailable)
		return
	}

	var req generateRuleRequest
	if status, err := a.decodeBody(w, r, &req); err != nil {
		a.respondJSON(w, ruleError(err.Error()), status)
		return
	}

	rule, err := rulegen.Generate(r.Context(), a.generator, req.Description)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rulegen.ErrEmptyDescription) {
			status = http.StatusBadRequest
		}
		a.logger.Warnw("Rule generation failed", "generator", a.generator.Name(), "error", err)
		a.respondJSON(w, ruleError(sanitizeErrorMessage(err.Error())), status)
		return
	}
	a.respondJSON(w, generateRuleResponse{Rule: &rule}, http.StatusOK)
}

// healthCheck reports liveness.
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}
