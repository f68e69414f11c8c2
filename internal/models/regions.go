package models

import "fmt"

// RegionCity is a member city of a travel region with a suggested dwell time.
type RegionCity struct {
	Name          string `json:"name"`
	Country       string `json:"country"`
	SuggestedDays int    `json:"suggested_days"`
}

// RegionOption is a geographically coherent cluster of discovered cities
// presented for selection. Immutable once produced by region analysis.
type RegionOption struct {
	ID            string       `json:"region_id"`
	Name          string       `json:"region_name"`
	Cities        []RegionCity `json:"cities"`
	EstimatedDays int          `json:"estimated_days"`
	TravelNote    string       `json:"travel_note"`
	Highlights    []string     `json:"highlights,omitempty"`
}

// RegionAnalysis is the ordered output of the region grouping step.
type RegionAnalysis struct {
	Regions      []RegionOption `json:"regions"`
	AnalysisNote string         `json:"analysis_note,omitempty"`
}

// Option returns the region with the given ID, if present.
func (a RegionAnalysis) Option(id string) (RegionOption, bool) {
	for _, r := range a.Regions {
		if r.ID == id {
			return r, true
		}
	}
	return RegionOption{}, false
}

// Validate checks that every region has an ID, a name and at least one city,
// and that IDs are unique.
func (a RegionAnalysis) Validate() error {
	seen := make(map[string]struct{}, len(a.Regions))
	for _, r := range a.Regions {
		if r.ID == "" {
			return fmt.Errorf("region analysis: region %q missing id", r.Name)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("region analysis: duplicate region id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Name == "" {
			return fmt.Errorf("region analysis: region %s missing name", r.ID)
		}
		if len(r.Cities) == 0 {
			return fmt.Errorf("region analysis: region %s has no cities", r.ID)
		}
	}
	return nil
}

// SelectAll is the sentinel region ID that selects every presented region.
const SelectAll = "all"

// RegionSelection is the set of region IDs chosen by the external actor.
type RegionSelection struct {
	RegionIDs  []string `json:"region_ids"`
	SelectedBy string   `json:"selected_by,omitempty"`
}
