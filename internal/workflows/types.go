package workflows

import (
	"time"

	"github.com/storyland-ai/storyland/internal/models"
)

// Phase names the states of the itinerary state machine.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseMetadata          Phase = "metadata"
	PhaseDiscovery         Phase = "discovery"
	PhaseAwaitingSelection Phase = "awaiting_selection"
	PhaseComposition       Phase = "composition"
	PhaseComplete          Phase = "complete"
	PhaseFailed            Phase = "failed"
	PhaseTimedOut          Phase = "timed_out"
)

// Terminal reports whether the phase ends the workflow.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed || p == PhaseTimedOut
}

// Join policies for the discovery fan-out.
const (
	JoinBestEffort = "best_effort"
	JoinStrict     = "strict"
)

// ExecutionConfig carries the tunables the workflow consumes. It is part of
// the workflow input so a run's behavior is fixed at start and never read
// from the process environment.
type ExecutionConfig struct {
	// WorkflowTimeout is the cumulative budget shared by the metadata,
	// discovery and composition phases. Time spent waiting for a region
	// selection does not count against it.
	WorkflowTimeout time.Duration `json:"workflow_timeout"`
	// PhaseTimeout bounds each of the metadata, discovery and composition
	// phases. The selection wait is unbounded.
	PhaseTimeout time.Duration `json:"phase_timeout"`
	// JoinPolicy is best_effort (a failed discovery pipeline degrades to an
	// empty result) or strict (first failure aborts the group).
	JoinPolicy string `json:"join_policy"`
	// AutoSelectAll skips the selection wait entirely, for non-interactive
	// runs.
	AutoSelectAll bool `json:"auto_select_all"`
}

func (c ExecutionConfig) normalized() ExecutionConfig {
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = 5 * time.Minute
	}
	if c.WorkflowTimeout <= 0 {
		c.WorkflowTimeout = 30 * time.Minute
	}
	if c.JoinPolicy != JoinStrict {
		c.JoinPolicy = JoinBestEffort
	}
	return c
}

// ItineraryInput starts an itinerary run.
type ItineraryInput struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id,omitempty"`
	BookTitle string `json:"book_title"`
	Author    string `json:"author,omitempty"`

	// Preferences submitted with the request; nil falls back to the stored
	// durable profile, then to defaults.
	Preferences *models.TravelPreferences `json:"preferences,omitempty"`

	Config ExecutionConfig `json:"config"`
}

// ItineraryResult is the workflow's return value.
type ItineraryResult struct {
	SessionID string `json:"session_id"`
	BookTitle string `json:"book_title"`
	Author    string `json:"author,omitempty"`

	Itinerary       models.TripItinerary  `json:"itinerary"`
	SelectedRegions []models.RegionOption `json:"selected_regions"`

	Phase          Phase `json:"phase"`
	CompletedSteps int   `json:"completed_steps"`
}

// PhaseStatus answers the current-phase query.
type PhaseStatus struct {
	Phase          Phase `json:"phase"`
	CompletedSteps int   `json:"completed_steps"`
	RegionsReady   bool  `json:"regions_ready"`
}

// PhaseTimeoutDetails rides on the timeout application error so callers can
// see which phase stalled and how far it got.
type PhaseTimeoutDetails struct {
	Phase          Phase `json:"phase"`
	CompletedSteps int   `json:"completed_steps"`
}

// Activity names as registered on the worker (method names on the activity
// receivers in internal/activities).
const (
	ActivityGatherBookMetadata       = "GatherBookMetadata"
	ActivityGatherBookContext        = "GatherBookContext"
	ActivityGatherCityEvidence       = "GatherCityEvidence"
	ActivityGatherLandmarkEvidence   = "GatherLandmarkEvidence"
	ActivityGatherAuthorSiteEvidence = "GatherAuthorSiteEvidence"
	ActivityGeocodeCities            = "GeocodeCities"
	ActivityStructureBookMetadata    = "StructureBookMetadata"
	ActivityStructureBookContext     = "StructureBookContext"
	ActivityStructureCityDiscovery   = "StructureCityDiscovery"
	ActivityStructureLandmarks       = "StructureLandmarkDiscovery"
	ActivityStructureAuthorSites     = "StructureAuthorSites"
	ActivityAnalyzeRegions           = "AnalyzeRegions"
	ActivityComposeItinerary         = "ComposeItinerary"
	ActivityLoadPreferences          = "LoadPreferences"
	ActivitySaveResult               = "SaveResult"
	ActivityLoadResult               = "LoadResult"
	ActivityPublishEvent             = "PublishEvent"
)
