package session

import (
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when a session has expired
	ErrSessionExpired = errors.New("session expired")
)

// Session ties a reader to one itinerary workflow run. The workflow fields
// are filled in once the run is started; the gateway uses them to route
// signals and queries.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookTitle string    `json:"book_title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	// LastPhase mirrors the workflow's most recently observed phase so
	// session listings don't need a workflow query per row.
	LastPhase string `json:"last_phase,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Active reports whether a workflow run is attached.
func (s *Session) Active() bool {
	return s.WorkflowID != ""
}
