package activities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/tools"
)

// GatherActivities owns the external tool clients. Gathering never fails on
// an empty result set; it fails only when a tool call itself fails after the
// retry budget.
type GatherActivities struct {
	books   *tools.BooksClient
	search  *tools.SearchClient
	geocode *tools.GeocodeClient
	logger  *zap.Logger
}

func NewGatherActivities(books *tools.BooksClient, search *tools.SearchClient, geocode *tools.GeocodeClient, logger *zap.Logger) *GatherActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatherActivities{books: books, search: search, geocode: geocode, logger: logger}
}

// GatherBookMetadata pulls catalog records for the raw title.
func (g *GatherActivities) GatherBookMetadata(ctx context.Context, input GatherInput) (GatherResult, error) {
	ev, err := g.books.Lookup(ctx, input.BookTitle)
	if err != nil {
		return GatherResult{}, fmt.Errorf("gather book metadata: %w", err)
	}
	g.logger.Info("Gathered book metadata evidence",
		zap.String("session_id", input.SessionID),
		zap.String("book_title", input.BookTitle),
		zap.Int("findings", len(ev.Findings)),
	)
	return GatherResult{Evidence: ev}, nil
}

// GatherBookContext searches for where and when the story takes place.
func (g *GatherActivities) GatherBookContext(ctx context.Context, input GatherInput) (GatherResult, error) {
	return g.searchEvidence(ctx, input,
		fmt.Sprintf("%q %s book primary settings locations time period", input.BookTitle, input.Author))
}

// GatherCityEvidence searches for cities associated with the book.
func (g *GatherActivities) GatherCityEvidence(ctx context.Context, input GatherInput) (GatherResult, error) {
	return g.searchEvidence(ctx, input,
		fmt.Sprintf("%q %s cities where the story is set", input.BookTitle, input.Author))
}

// GatherLandmarkEvidence searches for landmarks tied to scenes in the book.
func (g *GatherActivities) GatherLandmarkEvidence(ctx context.Context, input GatherInput) (GatherResult, error) {
	return g.searchEvidence(ctx, input,
		fmt.Sprintf("%q %s famous landmarks locations from the book", input.BookTitle, input.Author))
}

// GatherAuthorSiteEvidence searches for author museums, homes and memorials.
func (g *GatherActivities) GatherAuthorSiteEvidence(ctx context.Context, input GatherInput) (GatherResult, error) {
	author := input.Author
	if author == "" {
		author = fmt.Sprintf("author of %q", input.BookTitle)
	}
	return g.searchEvidence(ctx, input,
		fmt.Sprintf("%s museum birthplace home memorial sites to visit", author))
}

func (g *GatherActivities) searchEvidence(ctx context.Context, input GatherInput, query string) (GatherResult, error) {
	ev, err := g.search.Search(ctx, query, 5)
	if err != nil {
		return GatherResult{}, fmt.Errorf("gather: %w", err)
	}
	g.logger.Debug("Gathered search evidence",
		zap.String("session_id", input.SessionID),
		zap.String("query", query),
		zap.Int("findings", len(ev.Findings)),
	)
	return GatherResult{Evidence: ev}, nil
}

// GeocodeCities resolves coordinates for discovered cities. A geocoder miss
// leaves the city without coordinates; region grouping falls back to the
// country centroid. A failing geocoder never sinks the phase.
func (g *GatherActivities) GeocodeCities(ctx context.Context, input GeocodeInput) (GeocodeResult, error) {
	out := make([]models.CityInfo, len(input.Cities))
	copy(out, input.Cities)

	for i := range out {
		if out[i].HasCoords {
			continue
		}
		coords, ok, err := g.geocode.Geocode(ctx, out[i].Name, out[i].Country)
		if err != nil {
			g.logger.Warn("Geocode failed, continuing without coordinates",
				zap.String("city", out[i].Name),
				zap.Error(err),
			)
			continue
		}
		if ok {
			out[i].Lat = coords.Lat
			out[i].Lon = coords.Lon
			out[i].HasCoords = true
		}
	}
	return GeocodeResult{Cities: out}, nil
}
