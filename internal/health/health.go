// Package health exposes liveness and readiness probes for the gateway and
// worker. Checks run on demand with a per-check timeout; a critical failure
// makes the service not ready, a non-critical one only marks it degraded.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the outcome of a single check or of the service overall.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "healthy":
		*s = StatusHealthy
	case "degraded":
		*s = StatusDegraded
	default:
		*s = StatusUnhealthy
	}
	return nil
}

// CheckResult is one component's probe outcome.
type CheckResult struct {
	Component string                 `json:"component"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Critical  bool                   `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	IsCritical() bool
	Timeout() time.Duration
}

// Report is the aggregate of all registered checks.
type Report struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager holds the registered checkers and answers probes.
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, checkers: make(map[string]Checker)}
}

// Register adds a checker, replacing any previous one with the same name.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	m.checkers[c.Name()] = c
	m.mu.Unlock()
	m.logger.Info("Health checker registered",
		zap.String("checker", c.Name()),
		zap.Bool("critical", c.IsCritical()),
	)
}

// Run executes all checks concurrently and aggregates the result.
func (m *Manager) Run(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Components: make(map[string]CheckResult, len(checkers)),
		Timestamp:  time.Now(),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]CheckResult, len(checkers))
	)
	for i, c := range checkers {
		wg.Add(1)
		go func(i int, c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.Timeout())
			defer cancel()
			res := c.Check(cctx)
			mu.Lock()
			results[i] = res
			mu.Unlock()
		}(i, c)
	}
	wg.Wait()

	for _, res := range results {
		report.Components[res.Component] = res
		switch res.Status {
		case StatusUnhealthy:
			if res.Critical {
				report.Status = StatusUnhealthy
				report.Ready = false
			} else if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// IsReady reports whether every critical dependency is reachable.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Run(ctx).Ready
}

// RegisterRoutes attaches the probe endpoints to mux.
func (m *Manager) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", m.handleHealth)
	mux.HandleFunc("/health/ready", m.handleReady)
	mux.HandleFunc("/health/live", m.handleLive)
}

func (m *Manager) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report := m.Run(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	m.writeJSON(w, code, report)
}

func (m *Manager) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ready := m.IsReady(r.Context())
	code := http.StatusOK
	status := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		status = "not ready"
	}
	m.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"ready":     ready,
		"timestamp": time.Now().Unix(),
	})
}

// Liveness only proves the process can serve HTTP. Dependency failures must
// not restart the pod, so they are not consulted here.
func (m *Manager) handleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

func (m *Manager) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		m.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
