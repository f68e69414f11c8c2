// Package activities implements the workflow activities: evidence gathering
// against external tools, LLM structuring of gathered evidence, deterministic
// region analysis, itinerary composition and state persistence.
//
// Gathering and structuring are deliberately split across two receiver
// structs. GatherActivities owns the tool clients; StructureActivities owns
// only the LLM client, so a structuring step has no way to fetch anything
// beyond the evidence handed to it.
package activities

import (
	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/state"
)

// GatherInput identifies the book a gathering step researches.
type GatherInput struct {
	SessionID string `json:"session_id"`
	BookTitle string `json:"book_title"`
	Author    string `json:"author,omitempty"`
}

// GatherResult carries raw evidence back to the workflow.
type GatherResult struct {
	Evidence models.Evidence `json:"evidence"`
}

// StructureMetadataInput feeds the metadata structuring step.
type StructureMetadataInput struct {
	RawTitle string          `json:"raw_title"`
	Evidence models.Evidence `json:"evidence"`
}

// StructureContextInput feeds the book context structuring step.
type StructureContextInput struct {
	BookTitle string          `json:"book_title"`
	Author    string          `json:"author,omitempty"`
	Evidence  models.Evidence `json:"evidence"`
}

// StructureDiscoveryInput feeds the three discovery structuring steps.
type StructureDiscoveryInput struct {
	BookTitle string          `json:"book_title"`
	Author    string          `json:"author,omitempty"`
	Evidence  models.Evidence `json:"evidence"`
}

// GeocodeInput asks for coordinates on discovered cities.
type GeocodeInput struct {
	Cities []models.CityInfo `json:"cities"`
}

// GeocodeResult returns the same cities, coordinates filled in where the
// geocoder knew the place.
type GeocodeResult struct {
	Cities []models.CityInfo `json:"cities"`
}

// AnalyzeRegionsInput feeds region grouping with all discovery output.
type AnalyzeRegionsInput struct {
	Cities      []models.CityInfo       `json:"cities"`
	Landmarks   []models.LandmarkInfo   `json:"landmarks"`
	AuthorSites []models.AuthorSiteInfo `json:"author_sites"`
}

// ComposeInput feeds itinerary composition. SelectedRegions is the complete
// geographic universe of the step; cities outside it must not appear in the
// result.
type ComposeInput struct {
	BookTitle       string                   `json:"book_title"`
	Author          string                   `json:"author,omitempty"`
	BookContext     models.BookContext       `json:"book_context"`
	SelectedRegions []models.RegionOption    `json:"selected_regions"`
	Preferences     models.TravelPreferences `json:"preferences"`
}

// SaveResultInput persists one phase result.
type SaveResultInput struct {
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id"`
	Key       state.Key          `json:"key"`
	Result    models.PhaseResult `json:"result"`
}

// LoadResultInput reads one phase result.
type LoadResultInput struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Key       state.Key `json:"key"`
}

// LoadResultOutput is the read result; Found is false for an empty slot.
type LoadResultOutput struct {
	Found  bool               `json:"found"`
	Result models.PhaseResult `json:"result"`
}

// LoadPreferencesInput resolves the effective preference profile for a run.
// Inline preferences submitted with the request win over the stored durable
// profile; both fall back to defaults.
type LoadPreferencesInput struct {
	SessionID string                    `json:"session_id"`
	UserID    string                    `json:"user_id"`
	Inline    *models.TravelPreferences `json:"inline,omitempty"`
}
