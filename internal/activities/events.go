package activities

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/metrics"
	"github.com/storyland-ai/storyland/internal/streaming"
)

// EventActivities publishes progress events to the streaming hub. Publishing
// is best effort: a lost event never fails a workflow. Because every phase
// transition passes through here, this is also where phase timing metrics
// are recorded.
// trackingTTL bounds the per-workflow tracking maps. A run abandoned while
// parked at the selection wait never reports a terminal event; its entries
// are dropped once the workflow has been silent this long. The cost of an
// early drop is one unobserved selection-wait sample.
const trackingTTL = 48 * time.Hour

type EventActivities struct {
	hub    *streaming.Hub
	logger *zap.Logger

	mu           sync.Mutex
	phaseStarts  map[string]map[string]time.Time
	regionsReady map[string]time.Time
	lastSeen     map[string]time.Time
}

func NewEventActivities(hub *streaming.Hub, logger *zap.Logger) *EventActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventActivities{
		hub:          hub,
		logger:       logger,
		phaseStarts:  make(map[string]map[string]time.Time),
		regionsReady: make(map[string]time.Time),
		lastSeen:     make(map[string]time.Time),
	}
}

// PublishEvent fans one progress event out to stream subscribers.
func (e *EventActivities) PublishEvent(ctx context.Context, evt streaming.Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.record(evt)
	e.hub.Publish(evt.WorkflowID, evt)
	return nil
}

func (e *EventActivities) record(evt streaming.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastSeen[evt.WorkflowID] = evt.Timestamp
	e.sweep(evt.Timestamp)

	switch evt.Type {
	case streaming.EventPhaseStarted:
		starts := e.phaseStarts[evt.WorkflowID]
		if starts == nil {
			starts = make(map[string]time.Time)
			e.phaseStarts[evt.WorkflowID] = starts
		}
		starts[evt.Phase] = evt.Timestamp
	case streaming.EventPhaseCompleted:
		if start, ok := e.phaseStarts[evt.WorkflowID][evt.Phase]; ok {
			metrics.PhaseDuration.WithLabelValues(evt.Phase).Observe(evt.Timestamp.Sub(start).Seconds())
			delete(e.phaseStarts[evt.WorkflowID], evt.Phase)
		}
	case streaming.EventRegionsReady:
		e.regionsReady[evt.WorkflowID] = evt.Timestamp
	case streaming.EventSelectionReceived:
		if ready, ok := e.regionsReady[evt.WorkflowID]; ok {
			metrics.SelectionWaitSeconds.Observe(evt.Timestamp.Sub(ready).Seconds())
			delete(e.regionsReady, evt.WorkflowID)
		}
	case streaming.EventWorkflowCompleted:
		metrics.WorkflowsCompleted.WithLabelValues("completed").Inc()
		e.forget(evt.WorkflowID)
	case streaming.EventWorkflowFailed:
		// evt.Phase is the terminal phase (failed or timed_out). On a
		// timeout the phase that never completed is still in the start map.
		metrics.WorkflowsCompleted.WithLabelValues(evt.Phase).Inc()
		if evt.Phase == "timed_out" {
			for phase := range e.phaseStarts[evt.WorkflowID] {
				metrics.PhaseTimeouts.WithLabelValues(phase).Inc()
			}
		}
		e.forget(evt.WorkflowID)
	}
}

// sweep drops tracking for workflows that went quiet without a terminal
// event, typically runs abandoned at the selection wait.
func (e *EventActivities) sweep(now time.Time) {
	for id, seen := range e.lastSeen {
		if now.Sub(seen) > trackingTTL {
			e.forget(id)
		}
	}
}

func (e *EventActivities) forget(workflowID string) {
	delete(e.phaseStarts, workflowID)
	delete(e.regionsReady, workflowID)
	delete(e.lastSeen, workflowID)
}
