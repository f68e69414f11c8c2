package workflows

// Signal and query names on ItineraryWorkflow.
const (
	// SignalRegionSelection delivers a models.RegionSelection while the
	// workflow is in AwaitingSelection. Invalid selections are dropped and
	// the workflow keeps waiting.
	SignalRegionSelection = "region-selection"

	// QueryPhase returns a PhaseStatus.
	QueryPhase = "current_phase"
	// QueryRegions returns the models.RegionAnalysis once discovery is done.
	QueryRegions = "region_options"
	// QueryItinerary returns the final ItineraryResult once complete.
	QueryItinerary = "itinerary"
)
