package regions

import (
	_ "embed"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed geodata.yaml
var geodataRaw []byte

// countryInfo is one gazetteer entry.
type countryInfo struct {
	Continent string  `yaml:"continent"`
	Lat       float64 `yaml:"lat"`
	Lon       float64 `yaml:"lon"`
	Large     bool    `yaml:"large"`
}

type gazetteer struct {
	Countries map[string]countryInfo `yaml:"countries"`
	Aliases   map[string]string      `yaml:"aliases"`
}

var geo gazetteer

func init() {
	if err := yaml.Unmarshal(geodataRaw, &geo); err != nil {
		panic("regions: invalid embedded geodata: " + err.Error())
	}
}

// canonicalCountry resolves aliases and casing. Unknown countries map to
// their folded form with no gazetteer entry.
func canonicalCountry(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := geo.Aliases[n]; ok {
		return alias
	}
	return n
}

func countryEntry(name string) (countryInfo, bool) {
	info, ok := geo.Countries[canonicalCountry(name)]
	return info, ok
}

// continentOf returns the continent for a country, or "" when unknown.
// Unknown continents never participate in cross-border merges.
func continentOf(country string) string {
	if info, ok := countryEntry(country); ok {
		return info.Continent
	}
	return ""
}

func isLargeCountry(country string) bool {
	info, ok := countryEntry(country)
	return ok && info.Large
}

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
