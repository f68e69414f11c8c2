// Package streaming provides in-process pub/sub of itinerary progress
// events, consumed by the WebSocket endpoint in httpapi.
package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/storyland-ai/storyland/internal/metrics"
)

// Event types published over a run's stream.
const (
	EventPhaseStarted      = "phase_started"
	EventPhaseCompleted    = "phase_completed"
	EventRegionsReady      = "regions_ready"
	EventSelectionReceived = "selection_received"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"
)

// Event is one progress update for an itinerary run.
type Event struct {
	WorkflowID string    `json:"workflow_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Type       string    `json:"type"`
	Phase      string    `json:"phase,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        uint64    `json:"seq"`
}

// Marshal returns the event as JSON for logs and wire frames.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Hub fans events out to subscribers per workflow ID and keeps a bounded
// per-workflow history so reconnecting clients can replay missed events.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewHub creates a hub whose replay buffers hold capacity events per
// workflow.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for workflowID. The caller must drain
// the channel and call Unsubscribe when done.
func (h *Hub) Subscribe(workflowID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[workflowID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		h.subscribers[workflowID] = subs
	}
	subs[ch] = struct{}{}
	metrics.StreamSubscribers.Inc()
	return ch
}

// Unsubscribe removes and closes the subscriber channel.
func (h *Hub) Unsubscribe(workflowID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.subscribers[workflowID]; ok {
		if _, member := subs[ch]; member {
			delete(subs, ch)
			close(ch)
			metrics.StreamSubscribers.Dec()
		}
		if len(subs) == 0 {
			delete(h.subscribers, workflowID)
		}
	}
}

// Publish assigns the event a sequence number, records it for replay, and
// delivers it to all subscribers. Slow subscribers drop events rather than
// block the publisher.
func (h *Hub) Publish(workflowID string, evt Event) {
	h.mu.Lock()
	rg := h.history[workflowID]
	if rg == nil {
		rg = newRing(h.capacity)
		h.history[workflowID] = rg
	}
	evt.WorkflowID = workflowID
	evt.Seq = rg.nextSeq
	rg.nextSeq++
	rg.push(evt)
	subs := h.subscribers[workflowID]
	h.mu.Unlock()

	metrics.StreamEventsPublished.WithLabelValues(evt.Type).Inc()
	for ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ReplaySince returns recorded events with Seq > since, best effort within
// the ring capacity.
func (h *Hub) ReplaySince(workflowID string, since uint64) []Event {
	h.mu.RLock()
	rg := h.history[workflowID]
	h.mu.RUnlock()
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops the replay history of a finished workflow.
func (h *Hub) Forget(workflowID string) {
	h.mu.Lock()
	delete(h.history, workflowID)
	h.mu.Unlock()
}

type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity), nextSeq: 1} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
