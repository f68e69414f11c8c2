// Package httpapi exposes the itinerary workflow over HTTP: starting runs,
// fetching region options, submitting selections as workflow signals, and
// streaming progress over WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/auth"
	"github.com/storyland-ai/storyland/internal/metrics"
	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/session"
	"github.com/storyland-ai/storyland/internal/streaming"
	"github.com/storyland-ai/storyland/internal/workflows"
)

// workflowClient is the slice of the Temporal client the handler needs.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

// ItineraryHandler serves the itinerary API.
type ItineraryHandler struct {
	temporal  workflowClient
	sessions  *session.Manager
	hub       *streaming.Hub
	logger    *zap.Logger
	taskQueue string

	mu       sync.RWMutex
	defaults workflows.ExecutionConfig
}

func NewItineraryHandler(t workflowClient, sessions *session.Manager, hub *streaming.Hub, taskQueue string, defaults workflows.ExecutionConfig, logger *zap.Logger) *ItineraryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItineraryHandler{
		temporal:  t,
		sessions:  sessions,
		hub:       hub,
		logger:    logger,
		taskQueue: taskQueue,
		defaults:  defaults,
	}
}

// UpdateDefaults swaps the execution defaults applied to new runs. Called by
// the config watcher; in-flight workflows keep the config they started with.
func (h *ItineraryHandler) UpdateDefaults(cfg workflows.ExecutionConfig) {
	h.mu.Lock()
	h.defaults = cfg
	h.mu.Unlock()
}

// RegisterRoutes registers the itinerary routes on the provided mux.
func (h *ItineraryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/itineraries", h.handleCollection)
	mux.HandleFunc("/itineraries/", h.handleItem)
	h.RegisterWebSocket(mux)
}

type startRequest struct {
	BookTitle   string                    `json:"book_title"`
	Author      string                    `json:"author,omitempty"`
	Preferences *models.TravelPreferences `json:"preferences,omitempty"`

	AutoSelectAll bool `json:"auto_select_all,omitempty"`
}

type startResponse struct {
	SessionID  string `json:"session_id"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

func (h *ItineraryHandler) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.BookTitle) == "" {
		writeError(w, http.StatusBadRequest, "book_title is required")
		return
	}

	userID := ""
	if rc, ok := auth.ReaderFromContext(r.Context()); ok {
		userID = rc.UserID
	}

	sess, err := h.sessions.Create(r.Context(), userID, req.BookTitle, nil)
	if err != nil {
		h.logger.Error("Session create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session create failed")
		return
	}

	h.mu.RLock()
	cfg := h.defaults
	h.mu.RUnlock()
	if req.AutoSelectAll {
		cfg.AutoSelectAll = true
	}
	input := workflows.ItineraryInput{
		SessionID:   sess.ID,
		UserID:      userID,
		BookTitle:   req.BookTitle,
		Author:      req.Author,
		Preferences: req.Preferences,
		Config:      cfg,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	run, err := h.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "itinerary-" + sess.ID,
		TaskQueue: h.taskQueue,
	}, workflows.ItineraryWorkflow, input)
	if err != nil {
		h.logger.Error("Workflow start failed",
			zap.String("session_id", sess.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to start workflow")
		return
	}
	if err := h.sessions.AttachWorkflow(r.Context(), sess.ID, run.GetID(), run.GetRunID()); err != nil {
		h.logger.Warn("Attach workflow to session failed",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
	metrics.WorkflowsStarted.Inc()

	h.logger.Info("Itinerary started",
		zap.String("session_id", sess.ID),
		zap.String("workflow_id", run.GetID()),
		zap.String("book_title", req.BookTitle),
	)
	writeJSON(w, http.StatusAccepted, startResponse{
		SessionID:  sess.ID,
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
	})
}

func (h *ItineraryHandler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/itineraries/")
	sessionID, action, _ := strings.Cut(rest, "/")
	if sessionID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	sess, err := h.loadSession(w, r, sessionID)
	if err != nil {
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleStatus(w, r, sess)
	case action == "" && r.Method == http.MethodDelete:
		h.handleAbandon(w, r, sess)
	case action == "regions" && r.Method == http.MethodGet:
		h.handleRegions(w, r, sess)
	case action == "selection" && r.Method == http.MethodPost:
		h.handleSelection(w, r, sess)
	case action == "result" && r.Method == http.MethodGet:
		h.handleResult(w, r, sess)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// loadSession fetches the session and enforces that an authenticated reader
// only sees their own runs. It writes the error response itself.
func (h *ItineraryHandler) loadSession(w http.ResponseWriter, r *http.Request, sessionID string) (*session.Session, error) {
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			writeError(w, http.StatusInternalServerError, "session lookup failed")
		}
		return nil, err
	}
	if rc, ok := auth.ReaderFromContext(r.Context()); ok && rc.UserID != "" && sess.UserID != "" && rc.UserID != sess.UserID {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, fmt.Errorf("session %s does not belong to reader", sessionID)
	}
	if sess.WorkflowID == "" {
		writeError(w, http.StatusConflict, "no workflow attached to session")
		return nil, fmt.Errorf("session %s has no workflow", sessionID)
	}
	return sess, nil
}

func (h *ItineraryHandler) handleStatus(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var status workflows.PhaseStatus
	if err := h.query(r.Context(), sess, workflows.QueryPhase, &status); err != nil {
		writeError(w, http.StatusBadGateway, "workflow query failed")
		return
	}
	_ = h.sessions.RecordPhase(r.Context(), sess.ID, string(status.Phase))
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      sess.ID,
		"workflow_id":     sess.WorkflowID,
		"phase":           status.Phase,
		"completed_steps": status.CompletedSteps,
		"regions_ready":   status.RegionsReady,
	})
}

func (h *ItineraryHandler) handleRegions(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var analysis models.RegionAnalysis
	if err := h.query(r.Context(), sess, workflows.QueryRegions, &analysis); err != nil {
		writeError(w, http.StatusConflict, "region options not ready")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type selectionRequest struct {
	RegionIDs  []string `json:"region_ids"`
	SelectedBy string   `json:"selected_by,omitempty"`
}

func (h *ItineraryHandler) handleSelection(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req selectionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sel := models.RegionSelection{RegionIDs: req.RegionIDs, SelectedBy: req.SelectedBy}
	if len(sel.RegionIDs) == 0 {
		// Convenience: with a single discovered region there is nothing to
		// choose, so an empty submission selects it.
		var analysis models.RegionAnalysis
		if err := h.query(r.Context(), sess, workflows.QueryRegions, &analysis); err != nil || len(analysis.Regions) != 1 {
			writeError(w, http.StatusBadRequest, "region_ids is required")
			return
		}
		sel = models.RegionSelection{RegionIDs: []string{models.SelectAll}, SelectedBy: "auto"}
	}
	if sel.SelectedBy == "" {
		sel.SelectedBy = "reader"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.temporal.SignalWorkflow(ctx, sess.WorkflowID, sess.RunID, workflows.SignalRegionSelection, sel); err != nil {
		h.logger.Error("Selection signal failed",
			zap.String("workflow_id", sess.WorkflowID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to signal workflow")
		return
	}
	metrics.SelectionsReceived.WithLabelValues(sel.SelectedBy).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "sent",
		"session_id": sess.ID,
		"region_ids": sel.RegionIDs,
	})
}

func (h *ItineraryHandler) handleResult(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var result workflows.ItineraryResult
	if err := h.query(r.Context(), sess, workflows.QueryItinerary, &result); err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	// Not complete yet, or terminally failed; map the execution status.
	desc, err := h.temporal.DescribeWorkflowExecution(r.Context(), sess.WorkflowID, sess.RunID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "workflow describe failed")
		return
	}
	status := desc.GetWorkflowExecutionInfo().GetStatus()
	switch status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		writeJSON(w, http.StatusConflict, map[string]any{
			"session_id": sess.ID,
			"status":     "running",
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID,
			"status":     strings.ToLower(strings.TrimPrefix(status.String(), "WORKFLOW_EXECUTION_STATUS_")),
		})
	}
}

// handleAbandon drops the session record. The workflow, if still waiting on
// a selection, keeps its durable state and can be resumed by ID.
func (h *ItineraryHandler) handleAbandon(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := h.sessions.Delete(r.Context(), sess.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "session delete failed")
		return
	}
	h.hub.Forget(sess.WorkflowID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "session_id": sess.ID})
}

func (h *ItineraryHandler) query(ctx context.Context, sess *session.Session, queryType string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	val, err := h.temporal.QueryWorkflow(ctx, sess.WorkflowID, sess.RunID, queryType)
	if err != nil {
		return err
	}
	return val.Get(out)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
