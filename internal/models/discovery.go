package models

import "fmt"

// CityInfo is one city a reader could visit. Coordinates are filled by the
// geocoding step when available; HasCoords distinguishes a real (0,0) from
// an unresolved location.
type CityInfo struct {
	Name      string  `json:"name"`
	Country   string  `json:"country"`
	Relevance string  `json:"relevance"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	HasCoords bool    `json:"has_coords,omitempty"`
}

// CityDiscovery is the structured result of the city research pipeline.
type CityDiscovery struct {
	Cities []CityInfo `json:"cities"`
}

// BuildCityDiscovery validates a structured city list against its evidence.
// Each city name must be mentioned in the evidence; empty evidence admits
// only an empty list.
func BuildCityDiscovery(ev Evidence, cities []CityInfo) (CityDiscovery, error) {
	if ev.Empty() && len(cities) > 0 {
		return CityDiscovery{}, fmt.Errorf("city discovery: %w", ErrEmptyEvidence)
	}
	for _, c := range cities {
		if err := requireMentioned(ev, "city", c.Name); err != nil {
			return CityDiscovery{}, err
		}
	}
	return CityDiscovery{Cities: cities}, nil
}

// LandmarkInfo is one specific place tied to the book.
type LandmarkInfo struct {
	Name       string `json:"name"`
	City       string `json:"city"`
	Connection string `json:"connection"`
}

// LandmarkDiscovery is the structured result of the landmark research pipeline.
type LandmarkDiscovery struct {
	Landmarks []LandmarkInfo `json:"landmarks"`
}

// BuildLandmarkDiscovery validates a structured landmark list against its
// evidence.
func BuildLandmarkDiscovery(ev Evidence, landmarks []LandmarkInfo) (LandmarkDiscovery, error) {
	if ev.Empty() && len(landmarks) > 0 {
		return LandmarkDiscovery{}, fmt.Errorf("landmark discovery: %w", ErrEmptyEvidence)
	}
	for _, l := range landmarks {
		if err := requireMentioned(ev, "landmark", l.Name); err != nil {
			return LandmarkDiscovery{}, err
		}
	}
	return LandmarkDiscovery{Landmarks: landmarks}, nil
}

// AuthorSiteInfo is one site connected to the author's life.
type AuthorSiteInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	City string `json:"city"`
}

// AuthorSites is the structured result of the author-site research pipeline.
type AuthorSites struct {
	Sites []AuthorSiteInfo `json:"author_sites"`
}

// BuildAuthorSites validates a structured author-site list against its
// evidence.
func BuildAuthorSites(ev Evidence, sites []AuthorSiteInfo) (AuthorSites, error) {
	if ev.Empty() && len(sites) > 0 {
		return AuthorSites{}, fmt.Errorf("author sites: %w", ErrEmptyEvidence)
	}
	for _, s := range sites {
		if err := requireMentioned(ev, "author site", s.Name); err != nil {
			return AuthorSites{}, err
		}
	}
	return AuthorSites{Sites: sites}, nil
}
