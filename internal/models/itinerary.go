package models

import (
	"fmt"
	"strings"
)

// CityStop is one place to visit inside a city plan.
type CityStop struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Reason    string `json:"reason"`
	TimeOfDay string `json:"time_of_day"`
	Notes     string `json:"notes,omitempty"`
}

// CityPlan is the per-city slice of the final itinerary.
type CityPlan struct {
	Name          string     `json:"name"`
	Country       string     `json:"country"`
	DaysSuggested int        `json:"days_suggested"`
	Overview      string     `json:"overview"`
	Stops         []CityStop `json:"stops"`
}

// TripItinerary is the complete composed travel plan.
type TripItinerary struct {
	Cities      []CityPlan `json:"cities"`
	SummaryText string     `json:"summary_text"`
}

// TotalStops returns the number of stops across all cities.
func (t TripItinerary) TotalStops() int {
	n := 0
	for _, c := range t.Cities {
		n += len(c.Stops)
	}
	return n
}

// TotalDays returns the suggested trip length in days.
func (t TripItinerary) TotalDays() int {
	n := 0
	for _, c := range t.Cities {
		n += c.DaysSuggested
	}
	return n
}

// BuildTripItinerary validates a composed itinerary against the cities of the
// selected regions. A plan naming a city outside the selection is rejected:
// unselected discovery data must never leak into the final itinerary.
func BuildTripItinerary(selected []RegionOption, t TripItinerary) (TripItinerary, error) {
	allowed := make(map[string]struct{})
	for _, r := range selected {
		for _, c := range r.Cities {
			allowed[strings.ToLower(strings.TrimSpace(c.Name))] = struct{}{}
		}
	}
	for i, c := range t.Cities {
		if strings.TrimSpace(c.Name) == "" {
			return TripItinerary{}, fmt.Errorf("itinerary: city %d has no name", i)
		}
		if _, ok := allowed[strings.ToLower(strings.TrimSpace(c.Name))]; !ok {
			return TripItinerary{}, fmt.Errorf("itinerary: city %q is not part of the selected regions", c.Name)
		}
		if c.DaysSuggested < 1 {
			return TripItinerary{}, fmt.Errorf("itinerary: city %q has non-positive days", c.Name)
		}
	}
	if len(t.Cities) == 0 {
		return TripItinerary{}, fmt.Errorf("itinerary: no cities composed")
	}
	return t, nil
}
