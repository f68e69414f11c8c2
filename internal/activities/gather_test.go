package activities

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/regions"
	"github.com/storyland-ai/storyland/internal/tools"
)

func TestGeocodeCitiesFillsCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Dublin, Ireland" {
			w.Write([]byte(`[{"lat":"53.3498","lon":"-6.2603"}]`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	geocoder := tools.NewGeocodeClientWithBaseURL(srv.URL, "test", zaptest.NewLogger(t))
	g := NewGatherActivities(nil, nil, geocoder, zaptest.NewLogger(t))

	got, err := g.GeocodeCities(context.Background(), GeocodeInput{Cities: []models.CityInfo{
		{Name: "Dublin", Country: "Ireland"},
		{Name: "Atlantis", Country: "Unknownia"},
		{Name: "Paris", Country: "France", Lat: 48.86, Lon: 2.35, HasCoords: true},
	}})
	require.NoError(t, err)
	require.Len(t, got.Cities, 3)

	assert.True(t, got.Cities[0].HasCoords)
	assert.InDelta(t, 53.3498, got.Cities[0].Lat, 0.001)

	assert.False(t, got.Cities[1].HasCoords, "geocoder miss leaves city unresolved")

	// Already-resolved cities are not re-geocoded.
	assert.InDelta(t, 48.86, got.Cities[2].Lat, 0.001)
}

func TestGatherBookMetadataPassesEvidenceThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{"title":"Dracula","authors":["Bram Stoker"]}}]}`))
	}))
	defer srv.Close()

	books := tools.NewBooksClientWithBaseURL(srv.URL, "", zaptest.NewLogger(t))
	g := NewGatherActivities(books, nil, nil, zaptest.NewLogger(t))

	got, err := g.GatherBookMetadata(context.Background(), GatherInput{SessionID: "s", BookTitle: "Dracula"})
	require.NoError(t, err)
	assert.True(t, got.Evidence.Mentions("Bram Stoker"))
}

func TestAnalyzeRegionsActivity(t *testing.T) {
	r := NewRegionActivities(zaptest.NewLogger(t))

	analysis, err := r.AnalyzeRegions(context.Background(), AnalyzeRegionsInput{
		Cities: []models.CityInfo{
			{Name: "Paris", Country: "France", Lat: 48.86, Lon: 2.35, HasCoords: true},
			{Name: "Tokyo", Country: "Japan", Lat: 35.68, Lon: 139.69, HasCoords: true},
		},
	})
	require.NoError(t, err)
	assert.Len(t, analysis.Regions, 2)
	require.NoError(t, analysis.Validate())

	// Deterministic: same input, same output.
	again, err := r.AnalyzeRegions(context.Background(), AnalyzeRegionsInput{
		Cities: []models.CityInfo{
			{Name: "Paris", Country: "France", Lat: 48.86, Lon: 2.35, HasCoords: true},
			{Name: "Tokyo", Country: "Japan", Lat: 35.68, Lon: 139.69, HasCoords: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, analysis, again)

	// The selection gate accepts IDs straight out of the analysis.
	selected, err := regions.ValidateSelection(analysis, models.RegionSelection{RegionIDs: []string{analysis.Regions[0].ID}})
	require.NoError(t, err)
	assert.Len(t, selected, 1)
}
