package regions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyland-ai/storyland/internal/models"
)

func coord(name, country string, lat, lon float64) models.CityInfo {
	return models.CityInfo{Name: name, Country: country, Lat: lat, Lon: lon, HasCoords: true}
}

func regionFor(t *testing.T, a models.RegionAnalysis, cityName string) models.RegionOption {
	t.Helper()
	for _, r := range a.Regions {
		for _, c := range r.Cities {
			if c.Name == cityName {
				return r
			}
		}
	}
	t.Fatalf("no region contains %q", cityName)
	return models.RegionOption{}
}

func cityNames(r models.RegionOption) []string {
	out := make([]string, 0, len(r.Cities))
	for _, c := range r.Cities {
		out = append(out, c.Name)
	}
	return out
}

func TestGroupSameCountryMergesDistantIntercontinentalSplits(t *testing.T) {
	a := Group([]models.CityInfo{
		coord("Paris", "France", 48.86, 2.35),
		coord("Lyon", "France", 45.76, 4.84),
		coord("Tokyo", "Japan", 35.68, 139.69),
	}, nil, nil)

	require.Len(t, a.Regions, 2)

	fr := regionFor(t, a, "Paris")
	assert.ElementsMatch(t, []string{"Paris", "Lyon"}, cityNames(fr))

	jp := regionFor(t, a, "Tokyo")
	assert.NotEqual(t, fr.ID, jp.ID)
	assert.Len(t, jp.Cities, 1)
}

func TestGroupLargeCountrySplitsByCoast(t *testing.T) {
	a := Group([]models.CityInfo{
		coord("New York", "USA", 40.71, -74.01),
		coord("Boston", "USA", 42.36, -71.06),
		coord("Los Angeles", "USA", 34.05, -118.24),
	}, nil, nil)

	require.Len(t, a.Regions, 2)

	east := regionFor(t, a, "New York")
	assert.ElementsMatch(t, []string{"New York", "Boston"}, cityNames(east))
	assert.True(t, strings.HasPrefix(east.Name, "Eastern "), "got %q", east.Name)

	west := regionFor(t, a, "Los Angeles")
	assert.True(t, strings.HasPrefix(west.Name, "Western "), "got %q", west.Name)
}

func TestGroupCrossBorderMergeWithinRange(t *testing.T) {
	// London and Paris are ~340 km apart: short-trip range across a border.
	a := Group([]models.CityInfo{
		coord("London", "England", 51.51, -0.13),
		coord("Paris", "France", 48.86, 2.35),
	}, nil, nil)

	require.Len(t, a.Regions, 1)
	assert.ElementsMatch(t, []string{"London", "Paris"}, cityNames(a.Regions[0]))
	assert.Contains(t, a.Regions[0].Name, "&")
}

func TestGroupNeverMergesAcrossContinents(t *testing.T) {
	// Gibraltar-strait neighbours: ~250 km apart but on different continents.
	a := Group([]models.CityInfo{
		coord("Seville", "Spain", 37.39, -5.99),
		coord("Tangier", "Morocco", 35.78, -5.81),
	}, nil, nil)

	require.Len(t, a.Regions, 2)
}

func TestGroupCentroidFallbackAndUnknownCountry(t *testing.T) {
	a := Group([]models.CityInfo{
		{Name: "Florence", Country: "Italy"},
		{Name: "Rome", Country: "Italy"},
		{Name: "Atlantis", Country: "Unknownia"},
	}, nil, nil)

	it := regionFor(t, a, "Florence")
	assert.ElementsMatch(t, []string{"Florence", "Rome"}, cityNames(it))

	lost := regionFor(t, a, "Atlantis")
	assert.Len(t, lost.Cities, 1)
}

func TestGroupDedupesAndSkipsBlankCities(t *testing.T) {
	a := Group([]models.CityInfo{
		coord("Paris", "France", 48.86, 2.35),
		coord("paris", "France", 48.86, 2.35),
		{Name: "  ", Country: "France"},
	}, nil, nil)

	require.Len(t, a.Regions, 1)
	assert.Len(t, a.Regions[0].Cities, 1)
}

func TestGroupHighlightsAndDwellTime(t *testing.T) {
	a := Group(
		[]models.CityInfo{coord("Dublin", "Ireland", 53.35, -6.26)},
		[]models.LandmarkInfo{
			{Name: "Martello Tower", City: "Dublin", Connection: "opening chapter"},
			{Name: "Davy Byrne's Pub", City: "Dublin", Connection: "lunch scene"},
		},
		[]models.AuthorSiteInfo{{Name: "James Joyce Centre", Type: "museum", City: "Dublin"}},
	)

	require.Len(t, a.Regions, 1)
	r := a.Regions[0]
	assert.Len(t, r.Highlights, 3)
	assert.Equal(t, 3, r.Cities[0].SuggestedDays, "highlight-rich cities earn an extra day")
	assert.Equal(t, r.EstimatedDays, r.Cities[0].SuggestedDays)
}

func TestGroupEmptyInput(t *testing.T) {
	a := Group(nil, nil, nil)
	assert.Empty(t, a.Regions)
	assert.NotEmpty(t, a.AnalysisNote)
}

func TestGroupOutputIsValidAndDeterministic(t *testing.T) {
	cities := []models.CityInfo{
		coord("Boston", "USA", 42.36, -71.06),
		coord("New York", "USA", 40.71, -74.01),
		coord("Tokyo", "Japan", 35.68, 139.69),
		coord("Kyoto", "Japan", 35.01, 135.77),
	}

	first := Group(cities, nil, nil)
	require.NoError(t, first.Validate())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Group(cities, nil, nil))
	}
}
