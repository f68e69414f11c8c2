package activities

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/llm"
	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/util"
)

// evidenceCharBudget caps how much gathered text goes into a prompt so a
// verbose search result cannot blow the model's context window.
const evidenceCharBudget = 8000

// StructureActivities turns gathered evidence into typed records. The
// receiver holds only the LLM client: a structuring step cannot reach any
// tool, so everything it emits is checked against the evidence it was given.
type StructureActivities struct {
	llm    llm.Client
	logger *zap.Logger
}

func NewStructureActivities(client llm.Client, logger *zap.Logger) *StructureActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructureActivities{llm: client, logger: logger}
}

const metadataSystemPrompt = `You extract book metadata from catalog records.
Respond with one JSON object:
{"book_title": "", "author": "", "description": "", "published_date": "", "categories": [], "image_url": ""}
Use only information present in the records. If the records do not identify
the book, return the object with every field empty.`

// StructureBookMetadata distills catalog evidence into a metadata record.
// Empty evidence short-circuits to an empty record without an LLM call.
func (s *StructureActivities) StructureBookMetadata(ctx context.Context, input StructureMetadataInput) (models.BookMetadata, error) {
	if input.Evidence.Empty() {
		s.logger.Info("No metadata evidence, returning empty record",
			zap.String("raw_title", input.RawTitle))
		return models.BookMetadata{}, nil
	}

	user := fmt.Sprintf("Searched title: %q\n\nCatalog records:\n%s",
		input.RawTitle, util.TruncateString(input.Evidence.Text(), evidenceCharBudget, true))
	raw, err := s.llm.Complete(ctx, "structure_metadata", metadataSystemPrompt, user)
	if err != nil {
		return models.BookMetadata{}, err
	}

	var m models.BookMetadata
	if err := llm.DecodeJSON("structure_metadata", raw, &m); err != nil {
		return models.BookMetadata{}, err
	}
	return models.BuildBookMetadata(input.Evidence, m)
}

const contextSystemPrompt = `You identify where and when a story takes place
from research notes. Respond with one JSON object:
{"primary_locations": [], "time_period": "", "themes": []}
Name only locations that appear in the notes. If the notes contain nothing
about the book, return the object with every field empty.`

// StructureBookContext distills search evidence into the story's setting.
func (s *StructureActivities) StructureBookContext(ctx context.Context, input StructureContextInput) (models.BookContext, error) {
	if input.Evidence.Empty() {
		return models.BookContext{}, nil
	}

	user := fmt.Sprintf("Book: %s by %s\n\nResearch notes:\n%s",
		input.BookTitle, input.Author, util.TruncateString(input.Evidence.Text(), evidenceCharBudget, true))
	raw, err := s.llm.Complete(ctx, "structure_context", contextSystemPrompt, user)
	if err != nil {
		return models.BookContext{}, err
	}

	var c models.BookContext
	if err := llm.DecodeJSON("structure_context", raw, &c); err != nil {
		return models.BookContext{}, err
	}
	return models.BuildBookContext(input.Evidence, c)
}

const citySystemPrompt = `You extract visitable cities from research notes
about a book. Respond with one JSON object:
{"cities": [{"name": "", "country": "", "relevance": ""}]}
Name only cities that appear in the notes. An empty list is a valid answer.`

// StructureCityDiscovery distills search evidence into visitable cities.
func (s *StructureActivities) StructureCityDiscovery(ctx context.Context, input StructureDiscoveryInput) (models.CityDiscovery, error) {
	if input.Evidence.Empty() {
		return models.CityDiscovery{}, nil
	}

	raw, err := s.llm.Complete(ctx, "structure_cities", citySystemPrompt, s.discoveryPrompt(input))
	if err != nil {
		return models.CityDiscovery{}, err
	}

	var d models.CityDiscovery
	if err := llm.DecodeJSON("structure_cities", raw, &d); err != nil {
		return models.CityDiscovery{}, err
	}
	return models.BuildCityDiscovery(input.Evidence, d.Cities)
}

const landmarkSystemPrompt = `You extract landmarks tied to scenes of a book
from research notes. Respond with one JSON object:
{"landmarks": [{"name": "", "city": "", "connection": ""}]}
Name only landmarks that appear in the notes. An empty list is a valid answer.`

// StructureLandmarkDiscovery distills search evidence into book landmarks.
func (s *StructureActivities) StructureLandmarkDiscovery(ctx context.Context, input StructureDiscoveryInput) (models.LandmarkDiscovery, error) {
	if input.Evidence.Empty() {
		return models.LandmarkDiscovery{}, nil
	}

	raw, err := s.llm.Complete(ctx, "structure_landmarks", landmarkSystemPrompt, s.discoveryPrompt(input))
	if err != nil {
		return models.LandmarkDiscovery{}, err
	}

	var d models.LandmarkDiscovery
	if err := llm.DecodeJSON("structure_landmarks", raw, &d); err != nil {
		return models.LandmarkDiscovery{}, err
	}
	return models.BuildLandmarkDiscovery(input.Evidence, d.Landmarks)
}

const authorSiteSystemPrompt = `You extract author-related sites (museums,
homes, birthplaces, memorials) from research notes. Respond with one JSON
object:
{"author_sites": [{"name": "", "type": "", "city": ""}]}
Name only sites that appear in the notes. An empty list is a valid answer.`

// StructureAuthorSites distills search evidence into author sites.
func (s *StructureActivities) StructureAuthorSites(ctx context.Context, input StructureDiscoveryInput) (models.AuthorSites, error) {
	if input.Evidence.Empty() {
		return models.AuthorSites{}, nil
	}

	raw, err := s.llm.Complete(ctx, "structure_author_sites", authorSiteSystemPrompt, s.discoveryPrompt(input))
	if err != nil {
		return models.AuthorSites{}, err
	}

	var d models.AuthorSites
	if err := llm.DecodeJSON("structure_author_sites", raw, &d); err != nil {
		return models.AuthorSites{}, err
	}
	return models.BuildAuthorSites(input.Evidence, d.Sites)
}

func (s *StructureActivities) discoveryPrompt(input StructureDiscoveryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Book: %s", input.BookTitle)
	if input.Author != "" {
		fmt.Fprintf(&b, " by %s", input.Author)
	}
	b.WriteString("\n\nResearch notes:\n")
	b.WriteString(util.TruncateString(input.Evidence.Text(), evidenceCharBudget, true))
	return b.String()
}

const composeSystemPrompt = `You are a literary travel planner. Compose a
day-by-day city itinerary from the selected regions, tailored to the reader's
preferences. Respond with one JSON object:
{"cities": [{"name": "", "country": "", "days_suggested": 1, "overview": "",
"stops": [{"name": "", "type": "", "reason": "", "time_of_day": ""}]}],
"summary_text": ""}
Plan only cities listed in the selected regions; never add other cities.
Honor the stated budget, pace and accessibility needs.`

// ComposeItinerary builds the final plan from the selected regions only.
// Any city outside the selection fails validation.
func (s *StructureActivities) ComposeItinerary(ctx context.Context, input ComposeInput) (models.TripItinerary, error) {
	if len(input.SelectedRegions) == 0 {
		return models.TripItinerary{}, fmt.Errorf("compose: no regions selected")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Book: %s", input.BookTitle)
	if input.Author != "" {
		fmt.Fprintf(&b, " by %s", input.Author)
	}
	if len(input.BookContext.PrimaryLocations) > 0 {
		fmt.Fprintf(&b, "\nStory locations: %s", strings.Join(input.BookContext.PrimaryLocations, ", "))
	}
	if input.BookContext.TimePeriod != "" {
		fmt.Fprintf(&b, "\nTime period: %s", input.BookContext.TimePeriod)
	}
	fmt.Fprintf(&b, "\nReader preferences: %s", input.Preferences.Summary())
	b.WriteString("\n\nSelected regions:")
	for _, r := range input.SelectedRegions {
		fmt.Fprintf(&b, "\n- %s (%d days, %s)", r.Name, r.EstimatedDays, r.TravelNote)
		for _, c := range r.Cities {
			fmt.Fprintf(&b, "\n  - %s, %s (%d days)", c.Name, c.Country, c.SuggestedDays)
		}
		if len(r.Highlights) > 0 {
			fmt.Fprintf(&b, "\n  highlights: %s", strings.Join(r.Highlights, "; "))
		}
	}

	raw, err := s.llm.Complete(ctx, "compose_itinerary", composeSystemPrompt, b.String())
	if err != nil {
		return models.TripItinerary{}, err
	}

	var t models.TripItinerary
	if err := llm.DecodeJSON("compose_itinerary", raw, &t); err != nil {
		return models.TripItinerary{}, err
	}
	itinerary, err := models.BuildTripItinerary(input.SelectedRegions, t)
	if err != nil {
		return models.TripItinerary{}, err
	}

	s.logger.Info("Composed itinerary",
		zap.Int("cities", len(itinerary.Cities)),
		zap.Int("stops", itinerary.TotalStops()),
		zap.Int("days", itinerary.TotalDays()),
	)
	return itinerary, nil
}
