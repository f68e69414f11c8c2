package models

import "fmt"

// Budget tiers and pace values accepted in a preference profile.
const (
	BudgetLow      = "budget"
	BudgetModerate = "moderate"
	BudgetLuxury   = "luxury"

	PaceRelaxed   = "relaxed"
	PaceModerate  = "moderate"
	PaceFastPaced = "fast-paced"
)

// TravelPreferences is the durable per-user personalization record. It is
// written by the caller and only ever read by the composition phase.
type TravelPreferences struct {
	PrefersMuseums      bool     `json:"prefers_museums"`
	TravelsWithKids     bool     `json:"travels_with_kids"`
	Budget              string   `json:"budget"`
	FavoriteGenres      []string `json:"favorite_genres,omitempty"`
	FavoriteAuthors     []string `json:"favorite_authors,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
	AccessibilityNeeds  bool     `json:"accessibility_needs"`
	PreferredPace       string   `json:"preferred_pace"`
}

// DefaultPreferences returns the profile used when a user has none stored.
func DefaultPreferences() TravelPreferences {
	return TravelPreferences{
		PrefersMuseums: true,
		Budget:         BudgetModerate,
		PreferredPace:  PaceModerate,
	}
}

// Validate checks enum fields. Empty values are allowed and normalized by
// Normalize.
func (p TravelPreferences) Validate() error {
	switch p.Budget {
	case "", BudgetLow, BudgetModerate, BudgetLuxury:
	default:
		return fmt.Errorf("preferences: unknown budget %q", p.Budget)
	}
	switch p.PreferredPace {
	case "", PaceRelaxed, PaceModerate, PaceFastPaced:
	default:
		return fmt.Errorf("preferences: unknown pace %q", p.PreferredPace)
	}
	return nil
}

// Normalize fills empty enum fields with defaults.
func (p TravelPreferences) Normalize() TravelPreferences {
	if p.Budget == "" {
		p.Budget = BudgetModerate
	}
	if p.PreferredPace == "" {
		p.PreferredPace = PaceModerate
	}
	return p
}

// Summary renders the profile as a compact textual summary for the
// composition prompt.
func (p TravelPreferences) Summary() string {
	s := fmt.Sprintf("budget=%s pace=%s museums=%t kids=%t accessibility=%t",
		p.Budget, p.PreferredPace, p.PrefersMuseums, p.TravelsWithKids, p.AccessibilityNeeds)
	if len(p.DietaryRestrictions) > 0 {
		s += fmt.Sprintf(" dietary=%v", p.DietaryRestrictions)
	}
	return s
}
