// Package regions turns discovered cities into practical travel regions and
// validates region selections against them.
//
// Grouping is deterministic; it never consults an LLM. Rules:
//
//   - cities in the same country within the proximity band merge
//   - cities in different countries merge only within short rail/land/
//     short-flight range, and only on the same continent
//   - large countries (USA, China, Russia, ...) split into compass-named
//     sub-regions instead of forming one country-wide region
//   - intercontinental pairs never merge
package regions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/storyland-ai/storyland/internal/models"
)

const (
	// sameCountryBandKm is the proximity band for merging cities within one
	// country.
	sameCountryBandKm = 500
	// crossBorderBandKm is the ceiling for merging cities across a border:
	// roughly the reach of a direct train or a short flight.
	crossBorderBandKm = 600
)

// city is the grouping working record: a discovered city with resolved
// coordinates.
type city struct {
	info   models.CityInfo
	lat    float64
	lon    float64
	approx bool // coordinates fell back to the country centroid
}

// Group clusters discovered cities into ordered RegionOptions. Landmarks and
// author sites contribute highlights and dwell time to their host cities.
// Cities that cannot be placed (unknown country, no coordinates) form their
// own single-city region rather than being dropped.
func Group(cities []models.CityInfo, landmarks []models.LandmarkInfo, sites []models.AuthorSiteInfo) models.RegionAnalysis {
	work := prepare(cities)
	if len(work) == 0 {
		return models.RegionAnalysis{AnalysisNote: "no cities discovered"}
	}

	clusters := clusterSameCountry(work)
	clusters = mergeCrossBorder(clusters)

	highlights := highlightIndex(landmarks, sites)

	options := make([]models.RegionOption, 0, len(clusters))
	for _, cl := range clusters {
		options = append(options, buildOption(cl, highlights))
	}

	// Most substantial regions first; name breaks ties for determinism.
	sort.SliceStable(options, func(i, j int) bool {
		wi := len(options[i].Cities) + len(options[i].Highlights)
		wj := len(options[j].Cities) + len(options[j].Highlights)
		if wi != wj {
			return wi > wj
		}
		return options[i].Name < options[j].Name
	})
	for i := range options {
		options[i].ID = fmt.Sprintf("%d", i+1)
	}

	return models.RegionAnalysis{
		Regions:      options,
		AnalysisNote: fmt.Sprintf("grouped %d cities into %d travel regions", len(work), len(options)),
	}
}

// prepare dedupes cities by name and resolves coordinates, falling back to
// the country centroid.
func prepare(cities []models.CityInfo) []city {
	seen := make(map[string]struct{}, len(cities))
	out := make([]city, 0, len(cities))
	for _, c := range cities {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		w := city{info: c}
		if c.HasCoords {
			w.lat, w.lon = c.Lat, c.Lon
		} else if info, ok := countryEntry(c.Country); ok {
			w.lat, w.lon = info.Lat, info.Lon
			w.approx = true
		} else {
			w.approx = true
		}
		out = append(out, w)
	}
	return out
}

// clusterSameCountry single-links cities of one country within the proximity
// band. Cities with centroid-fallback coordinates collapse into one cluster
// per country, which matches the "same country, close enough" default.
func clusterSameCountry(work []city) [][]city {
	byCountry := make(map[string][]city)
	var order []string
	for _, w := range work {
		key := canonicalCountry(w.info.Country)
		if _, ok := byCountry[key]; !ok {
			order = append(order, key)
		}
		byCountry[key] = append(byCountry[key], w)
	}

	var clusters [][]city
	for _, key := range order {
		members := byCountry[key]
		parent := make([]int, len(members))
		for i := range parent {
			parent[i] = i
		}
		var find func(int) int
		find = func(i int) int {
			if parent[i] != i {
				parent[i] = find(parent[i])
			}
			return parent[i]
		}
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				if haversineKm(members[i].lat, members[i].lon, members[j].lat, members[j].lon) <= sameCountryBandKm {
					parent[find(i)] = find(j)
				}
			}
		}
		grouped := make(map[int][]city)
		var roots []int
		for i, m := range members {
			r := find(i)
			if _, ok := grouped[r]; !ok {
				roots = append(roots, r)
			}
			grouped[r] = append(grouped[r], m)
		}
		for _, r := range roots {
			clusters = append(clusters, grouped[r])
		}
	}
	return clusters
}

// mergeCrossBorder joins clusters from different countries when their closest
// cities sit within short-trip range on the same continent. Intercontinental
// pairs are never considered.
func mergeCrossBorder(clusters [][]city) [][]city {
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(clusters) && !merged; i++ {
			for j := i + 1; j < len(clusters) && !merged; j++ {
				if canMergeAcrossBorder(clusters[i], clusters[j]) {
					clusters[i] = append(clusters[i], clusters[j]...)
					clusters = append(clusters[:j], clusters[j+1:]...)
					merged = true
				}
			}
		}
	}
	return clusters
}

func canMergeAcrossBorder(a, b []city) bool {
	ca := continentOf(a[0].info.Country)
	cb := continentOf(b[0].info.Country)
	if ca == "" || cb == "" || ca != cb {
		return false
	}
	if canonicalCountry(a[0].info.Country) == canonicalCountry(b[0].info.Country) {
		// Same-country clusters were already split on purpose (large
		// countries); do not re-join them here.
		return false
	}
	minDist := -1.0
	for _, x := range a {
		for _, y := range b {
			if x.approx && y.approx {
				continue
			}
			d := haversineKm(x.lat, x.lon, y.lat, y.lon)
			if minDist < 0 || d < minDist {
				minDist = d
			}
		}
	}
	return minDist >= 0 && minDist <= crossBorderBandKm
}

// highlightIndex maps a folded city name to its book-related highlights.
func highlightIndex(landmarks []models.LandmarkInfo, sites []models.AuthorSiteInfo) map[string][]string {
	idx := make(map[string][]string)
	for _, l := range landmarks {
		key := strings.ToLower(strings.TrimSpace(l.City))
		idx[key] = append(idx[key], l.Name)
	}
	for _, s := range sites {
		key := strings.ToLower(strings.TrimSpace(s.City))
		idx[key] = append(idx[key], fmt.Sprintf("%s (%s)", s.Name, s.Type))
	}
	return idx
}

func buildOption(cl []city, highlights map[string][]string) models.RegionOption {
	sort.SliceStable(cl, func(i, j int) bool { return cl[i].info.Name < cl[j].info.Name })

	opt := models.RegionOption{Name: regionName(cl)}
	var maxDist float64
	for i, w := range cl {
		cityHighlights := highlights[strings.ToLower(strings.TrimSpace(w.info.Name))]
		opt.Highlights = append(opt.Highlights, cityHighlights...)

		days := 2
		if len(cityHighlights) >= 2 {
			days = 3
		}
		opt.Cities = append(opt.Cities, models.RegionCity{
			Name:          w.info.Name,
			Country:       w.info.Country,
			SuggestedDays: days,
		})
		opt.EstimatedDays += days

		for j := i + 1; j < len(cl); j++ {
			d := haversineKm(w.lat, w.lon, cl[j].lat, cl[j].lon)
			if d > maxDist {
				maxDist = d
			}
		}
	}
	opt.TravelNote = travelNote(len(cl), maxDist)
	return opt
}

// regionName derives a human name: the country for single-country clusters,
// a compass-qualified country name for large-country sub-regions, and a
// joined list for cross-border clusters.
func regionName(cl []city) string {
	countries := make(map[string]string) // canonical -> display
	var order []string
	for _, w := range cl {
		key := canonicalCountry(w.info.Country)
		if _, ok := countries[key]; !ok {
			countries[key] = displayCountry(w.info.Country)
			order = append(order, key)
		}
	}
	if len(order) == 1 {
		display := countries[order[0]]
		if isLargeCountry(order[0]) {
			if dir := compassDirection(cl, order[0]); dir != "" {
				return dir + " " + display
			}
		}
		return display
	}
	sort.Strings(order)
	names := make([]string, 0, len(order))
	for _, key := range order {
		names = append(names, countries[key])
	}
	return strings.Join(names, " & ")
}

func displayCountry(raw string) string {
	key := canonicalCountry(raw)
	words := strings.Fields(key)
	for i, w := range words {
		if w == "of" || w == "and" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// compassDirection places a sub-region cluster relative to its country
// centroid. Returns "" when the cluster sits on the centroid (single
// country-wide cluster).
func compassDirection(cl []city, country string) string {
	info, ok := geo.Countries[country]
	if !ok {
		return ""
	}
	var lat, lon float64
	n := 0
	for _, w := range cl {
		if w.approx {
			continue
		}
		lat += w.lat
		lon += w.lon
		n++
	}
	if n == 0 {
		return ""
	}
	lat, lon = lat/float64(n), lon/float64(n)
	dLat, dLon := lat-info.Lat, lon-info.Lon
	if dLat == 0 && dLon == 0 {
		return ""
	}
	if abs(dLon) >= abs(dLat) {
		if dLon < 0 {
			return "Western"
		}
		return "Eastern"
	}
	if dLat < 0 {
		return "Southern"
	}
	return "Northern"
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func travelNote(cities int, maxDistKm float64) string {
	if cities <= 1 {
		return "single-city stay; explore on foot or by local transit"
	}
	switch {
	case maxDistKm <= 150:
		return "cities are close together; travel by car or regional rail"
	case maxDistKm <= 500:
		return "connect cities by train; longest leg under a day"
	case maxDistKm <= 1500:
		return "use high-speed rail or short flights between cities"
	default:
		return "short flights recommended between the farthest cities"
	}
}
