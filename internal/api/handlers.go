package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"footprintiq-backend/services/alert-engine/internal/engine"
	"footprintiq-backend/services/alert-engine/internal/notify"
	"footprintiq-backend/services/alert-engine/internal/storage"
)

// Actions accepted by the dispatch endpoint.
const (
	ActionEvaluateRules        = "evaluate_rules"
	ActionAcknowledgeAlert     = "acknowledge_alert"
	ActionResolveAlert         = "resolve_alert"
	ActionSendTestNotification = "send_test_notification"
	ActionTrainBaseline        = "train_anomaly_baseline"
)

// actorHeader carries the authenticated actor identity for acknowledge and
// resolve. Authentication itself happens upstream; the engine only requires
// that an identity is present.
const actorHeader = "X-Actor-Id"

type PassRunner interface {
	RunEvaluationPass(ctx context.Context) ([]engine.Outcome, error)
}

type AlertActions interface {
	Acknowledge(ctx context.Context, alertID, actor string) error
	Resolve(ctx context.Context, alertID, actor string) error
}

type BaselineTrainer interface {
	Train(ctx context.Context, workspaceID, metricType, metricTarget string) (storage.Baseline, error)
}

type TestSender interface {
	SendTest(ctx context.Context, channelID string) (notify.Outcome, error)
}

type AlertReader interface {
	ListActiveAlerts(ctx context.Context, workspaceID string) ([]storage.ActiveAlert, error)
	ListHistory(ctx context.Context, workspaceID string, limit int) ([]storage.HistoryEntry, error)
}

type Handler struct {
	Runner   PassRunner
	Alerts   AlertActions
	Trainer  BaselineTrainer
	Notifier TestSender
	Reader   AlertReader
	Timeout  time.Duration
}

type actionRequest struct {
	Action       string `json:"action"`
	AlertID      string `json:"alert_id"`
	ChannelID    string `json:"channel_id"`
	WorkspaceID  string `json:"workspace_id"`
	MetricType   string `json:"metric_type"`
	MetricTarget string `json:"metric_target"`
}

type baselineResponse struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	SampleCount int     `json:"sample_count"`
}

type alertResponse struct {
	ID             string     `json:"id"`
	AlertRuleID    string     `json:"alert_rule_id"`
	WorkspaceID    string     `json:"workspace_id"`
	Severity       string     `json:"severity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Status         string     `json:"status"`
	FiredAt        time.Time  `json:"fired_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}

type historyResponse struct {
	ID              string     `json:"id"`
	AlertRuleID     string     `json:"alert_rule_id"`
	WorkspaceID     string     `json:"workspace_id"`
	Severity        string     `json:"severity"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	FiredAt         time.Time  `json:"fired_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	Acknowledged    bool       `json:"acknowledged"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/actions", h.handleAction)
	r.Post("/rules/evaluate", h.handleEvaluate)
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.handleAlertsList)
		r.Get("/history", h.handleAlertHistory)
		r.Post("/{id}/acknowledge", h.handleAcknowledge)
		r.Post("/{id}/resolve", h.handleResolve)
	})
	r.Post("/channels/{id}/test", h.handleTestNotification)
	r.Post("/baselines/train", h.handleTrainBaseline)
}

// handleAction is the discriminated entry point mirroring the other service
// surfaces: one POST body with an action field.
func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	switch req.Action {
	case ActionEvaluateRules:
		h.evaluate(w, r)
	case ActionAcknowledgeAlert:
		h.acknowledge(w, r, req.AlertID)
	case ActionResolveAlert:
		h.resolve(w, r, req.AlertID)
	case ActionSendTestNotification:
		h.sendTest(w, r, req.ChannelID)
	case ActionTrainBaseline:
		h.trainBaseline(w, r, req.WorkspaceID, req.MetricType, req.MetricTarget)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "unknown action: " + req.Action})
	}
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	h.evaluate(w, r)
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	results, err := h.Runner.RunEvaluationPass(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "evaluation pass failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, alertID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Alerts.Acknowledge(ctx, alertID, actor); err != nil {
		writeAlertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, alertID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	if err := h.Alerts.Resolve(ctx, alertID, actor); err != nil {
		writeAlertError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	h.sendTest(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) sendTest(w http.ResponseWriter, r *http.Request, channelID string) {
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	outcome, err := h.Notifier.SendTest(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "channel not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "message": err.Error(), "outcome": outcome})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "outcome": outcome})
}

func (h *Handler) handleTrainBaseline(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	h.trainBaseline(w, r, req.WorkspaceID, req.MetricType, req.MetricTarget)
}

func (h *Handler) trainBaseline(w http.ResponseWriter, r *http.Request, workspaceID, metricType, metricTarget string) {
	if workspaceID == "" || metricType == "" || metricTarget == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "workspace_id, metric_type and metric_target are required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	baseline, err := h.Trainer.Train(ctx, workspaceID, metricType, metricTarget)
	if errors.Is(err, engine.ErrInsufficientData) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"ok": false, "message": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "baseline training failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"baseline": baselineResponse{
			Mean:        baseline.MeanValue,
			StdDev:      baseline.StdDev,
			Min:         baseline.MinValue,
			Max:         baseline.MaxValue,
			SampleCount: baseline.SampleCount,
		},
	})
}

func (h *Handler) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "workspace_id is required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	alerts, err := h.Reader.ListActiveAlerts(ctx, workspaceID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list alerts"})
		return
	}
	results := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		results = append(results, alertResponse{
			ID: a.ID, AlertRuleID: a.AlertRuleID, WorkspaceID: a.WorkspaceID,
			Severity: a.Severity, Title: a.Title, Message: a.Message, Status: a.Status,
			FiredAt: a.FiredAt, AcknowledgedAt: a.AcknowledgedAt, AcknowledgedBy: a.AcknowledgedBy,
			ResolvedAt: a.ResolvedAt, ResolvedBy: a.ResolvedBy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": results})
}

func (h *Handler) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "workspace_id is required"})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	entries, err := h.Reader.ListHistory(ctx, workspaceID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list history"})
		return
	}
	results := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		results = append(results, historyResponse{
			ID: e.ID, AlertRuleID: e.AlertRuleID, WorkspaceID: e.WorkspaceID,
			Severity: e.Severity, Title: e.Title, Message: e.Message,
			FiredAt: e.FiredAt, ResolvedAt: e.ResolvedAt,
			DurationMinutes: e.DurationMinutes, Acknowledged: e.Acknowledged,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": results})
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "message": "actor identity required"})
		return "", false
	}
	return actor, true
}

func writeAlertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "alert not found"})
	case errors.Is(err, engine.ErrAlertResolved):
		writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "message": "alert already resolved"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to update alert"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
