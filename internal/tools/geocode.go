package tools

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/retry"
)

const defaultGeocodeBaseURL = "https://nominatim.openstreetmap.org"

// Coordinates is a geocoded point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// GeocodeClient resolves city coordinates through the Nominatim API.
// Nominatim's usage policy caps anonymous clients at one request per second;
// the limiter enforces that.
type GeocodeClient struct {
	transport
	baseURL   string
	userAgent string
}

func NewGeocodeClient(userAgent string, policy retry.Policy, logger *zap.Logger) *GeocodeClient {
	if userAgent == "" {
		userAgent = "storyland/1.0"
	}
	return &GeocodeClient{
		transport: newTransport("geocode", &http.Client{Timeout: 10 * time.Second}, 1, policy, logger),
		baseURL:   defaultGeocodeBaseURL,
		userAgent: userAgent,
	}
}

// NewGeocodeClientWithBaseURL is used by tests to point at a stub server.
func NewGeocodeClientWithBaseURL(baseURL, userAgent string, logger *zap.Logger) *GeocodeClient {
	c := NewGeocodeClient(userAgent, retry.Default(), logger)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type geocodeResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode resolves a city to coordinates. An unknown place returns ok=false
// with no error; callers fall back to the country centroid.
func (c *GeocodeClient) Geocode(ctx context.Context, city, country string) (Coordinates, bool, error) {
	q := city
	if country != "" {
		q += ", " + country
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")
	params.Set("limit", "1")

	headers := map[string]string{"User-Agent": c.userAgent}

	var results []geocodeResult
	if err := c.getJSON(ctx, c.baseURL+"/search?"+params.Encode(), headers, &results); err != nil {
		return Coordinates{}, false, err
	}
	if len(results) == 0 {
		c.logger.Debug("Geocode miss", zap.String("query", q))
		return Coordinates{}, false, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Coordinates{}, false, &DecodeError{Tool: c.name, Err: err}
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Coordinates{}, false, &DecodeError{Tool: c.name, Err: err}
	}
	return Coordinates{Lat: lat, Lon: lon}, true, nil
}
