package models

import "fmt"

// ResultKind tags the variant carried by a PhaseResult.
type ResultKind string

const (
	KindBookMetadata      ResultKind = "book_metadata"
	KindBookContext       ResultKind = "book_context"
	KindCityDiscovery     ResultKind = "city_discovery"
	KindLandmarkDiscovery ResultKind = "landmark_discovery"
	KindAuthorSites       ResultKind = "author_sites"
	KindRegionAnalysis    ResultKind = "region_analysis"
	KindSelection         ResultKind = "selection"
	KindItinerary         ResultKind = "itinerary"
	KindPreferences       ResultKind = "preferences"
)

// PhaseResult is the typed union written to shared state by phases. Exactly
// one variant field matching Kind is populated; Validate enforces this before
// any state write.
type PhaseResult struct {
	Kind ResultKind `json:"kind"`

	Metadata    *BookMetadata      `json:"metadata,omitempty"`
	Context     *BookContext       `json:"context,omitempty"`
	Cities      *CityDiscovery     `json:"cities,omitempty"`
	Landmarks   *LandmarkDiscovery `json:"landmarks,omitempty"`
	AuthorSites *AuthorSites       `json:"author_sites,omitempty"`
	Regions     *RegionAnalysis    `json:"regions,omitempty"`
	Selection   *RegionSelection   `json:"selection,omitempty"`
	Itinerary   *TripItinerary     `json:"itinerary,omitempty"`
	Preferences *TravelPreferences `json:"preferences,omitempty"`
}

func MetadataResult(m BookMetadata) PhaseResult {
	return PhaseResult{Kind: KindBookMetadata, Metadata: &m}
}

func ContextResult(c BookContext) PhaseResult {
	return PhaseResult{Kind: KindBookContext, Context: &c}
}

func CityResult(c CityDiscovery) PhaseResult {
	return PhaseResult{Kind: KindCityDiscovery, Cities: &c}
}

func LandmarkResult(l LandmarkDiscovery) PhaseResult {
	return PhaseResult{Kind: KindLandmarkDiscovery, Landmarks: &l}
}

func AuthorSitesResult(a AuthorSites) PhaseResult {
	return PhaseResult{Kind: KindAuthorSites, AuthorSites: &a}
}

func RegionsResult(r RegionAnalysis) PhaseResult {
	return PhaseResult{Kind: KindRegionAnalysis, Regions: &r}
}

func SelectionResult(s RegionSelection) PhaseResult {
	return PhaseResult{Kind: KindSelection, Selection: &s}
}

func ItineraryResult(t TripItinerary) PhaseResult {
	return PhaseResult{Kind: KindItinerary, Itinerary: &t}
}

func PreferencesResult(p TravelPreferences) PhaseResult {
	return PhaseResult{Kind: KindPreferences, Preferences: &p}
}

// Validate checks the kind tag matches the populated variant and that no
// other variant is set.
func (r PhaseResult) Validate() error {
	set := 0
	var match bool
	check := func(kind ResultKind, present bool) {
		if present {
			set++
			if r.Kind == kind {
				match = true
			}
		}
	}
	check(KindBookMetadata, r.Metadata != nil)
	check(KindBookContext, r.Context != nil)
	check(KindCityDiscovery, r.Cities != nil)
	check(KindLandmarkDiscovery, r.Landmarks != nil)
	check(KindAuthorSites, r.AuthorSites != nil)
	check(KindRegionAnalysis, r.Regions != nil)
	check(KindSelection, r.Selection != nil)
	check(KindItinerary, r.Itinerary != nil)
	check(KindPreferences, r.Preferences != nil)

	if set == 0 {
		return fmt.Errorf("phase result: no variant populated")
	}
	if set > 1 {
		return fmt.Errorf("phase result: %d variants populated, want 1", set)
	}
	if !match {
		return fmt.Errorf("phase result: kind %q does not match populated variant", r.Kind)
	}
	if r.Regions != nil {
		return r.Regions.Validate()
	}
	if r.Preferences != nil {
		return r.Preferences.Validate()
	}
	if r.Metadata != nil {
		return r.Metadata.Validate()
	}
	return nil
}
