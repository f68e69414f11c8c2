package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/storyland-ai/storyland/internal/activities"
	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/state"
	"github.com/storyland-ai/storyland/internal/streaming"
)

// savedResults records SaveResult calls so tests can assert which state
// slots were written. SaveResult may run from concurrent pipelines.
type savedResults struct {
	mu    sync.Mutex
	byKey map[state.Key]models.PhaseResult
}

func newSavedResults() *savedResults {
	return &savedResults{byKey: make(map[state.Key]models.PhaseResult)}
}

func (s *savedResults) record(in activities.SaveResultInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[in.Key] = in.Result
}

func (s *savedResults) has(key state.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byKey[key]
	return ok
}

func (s *savedResults) get(key state.Key) models.PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[key]
}

func register(env *testsuite.TestWorkflowEnvironment, name string, fn interface{}) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func evidence(contents ...string) models.Evidence {
	var ev models.Evidence
	for _, c := range contents {
		ev.Add("test", "q", c)
	}
	return ev
}

// registerHappyActivities wires mocks that resolve Ulysses and discover two
// far-apart cities, yielding two region options. Region analysis runs the
// real grouping code.
func registerHappyActivities(env *testsuite.TestWorkflowEnvironment, saved *savedResults) {
	gatherOK := func(ctx context.Context, in activities.GatherInput) (activities.GatherResult, error) {
		return activities.GatherResult{Evidence: evidence("Ulysses is set in Dublin. Joyce lived in Trieste.")}, nil
	}
	register(env, ActivityGatherBookMetadata, gatherOK)
	register(env, ActivityGatherBookContext, gatherOK)
	register(env, ActivityGatherCityEvidence, gatherOK)
	register(env, ActivityGatherLandmarkEvidence, gatherOK)
	register(env, ActivityGatherAuthorSiteEvidence, gatherOK)

	register(env, ActivityStructureBookMetadata, func(ctx context.Context, in activities.StructureMetadataInput) (models.BookMetadata, error) {
		return models.BookMetadata{BookTitle: "Ulysses", Author: "James Joyce"}, nil
	})
	register(env, ActivityStructureBookContext, func(ctx context.Context, in activities.StructureContextInput) (models.BookContext, error) {
		return models.BookContext{PrimaryLocations: []string{"Dublin"}, TimePeriod: "1904"}, nil
	})
	register(env, ActivityStructureCityDiscovery, func(ctx context.Context, in activities.StructureDiscoveryInput) (models.CityDiscovery, error) {
		return models.CityDiscovery{Cities: []models.CityInfo{
			{Name: "Dublin", Country: "Ireland", Relevance: "primary setting"},
			{Name: "Tokyo", Country: "Japan", Relevance: "translation exhibit"},
		}}, nil
	})
	register(env, ActivityStructureLandmarks, func(ctx context.Context, in activities.StructureDiscoveryInput) (models.LandmarkDiscovery, error) {
		return models.LandmarkDiscovery{Landmarks: []models.LandmarkInfo{
			{Name: "Martello Tower", City: "Dublin", Connection: "opening scene"},
		}}, nil
	})
	register(env, ActivityStructureAuthorSites, func(ctx context.Context, in activities.StructureDiscoveryInput) (models.AuthorSites, error) {
		return models.AuthorSites{}, nil
	})

	register(env, ActivityGeocodeCities, func(ctx context.Context, in activities.GeocodeInput) (activities.GeocodeResult, error) {
		coords := map[string][2]float64{
			"Dublin": {53.35, -6.26},
			"Tokyo":  {35.68, 139.69},
		}
		out := make([]models.CityInfo, len(in.Cities))
		for i, c := range in.Cities {
			if ll, ok := coords[c.Name]; ok {
				c.Lat, c.Lon, c.HasCoords = ll[0], ll[1], true
			}
			out[i] = c
		}
		return activities.GeocodeResult{Cities: out}, nil
	})

	register(env, ActivityAnalyzeRegions, activities.NewRegionActivities(nil).AnalyzeRegions)

	register(env, ActivityLoadPreferences, func(ctx context.Context, in activities.LoadPreferencesInput) (models.TravelPreferences, error) {
		if in.Inline != nil {
			return in.Inline.Normalize(), nil
		}
		return models.DefaultPreferences(), nil
	})
	register(env, ActivitySaveResult, func(ctx context.Context, in activities.SaveResultInput) error {
		saved.record(in)
		return nil
	})
	register(env, ActivityPublishEvent, func(ctx context.Context, evt streaming.Event) error {
		return nil
	})

	register(env, ActivityComposeItinerary, func(ctx context.Context, in activities.ComposeInput) (models.TripItinerary, error) {
		cities := make([]models.CityPlan, 0)
		for _, r := range in.SelectedRegions {
			for _, c := range r.Cities {
				cities = append(cities, models.CityPlan{
					Name:          c.Name,
					Country:       c.Country,
					DaysSuggested: c.SuggestedDays,
				})
			}
		}
		return models.TripItinerary{Cities: cities, SummaryText: "test plan"}, nil
	})
}

func itineraryInput(cfg ExecutionConfig) ItineraryInput {
	return ItineraryInput{
		SessionID: "sess-1",
		UserID:    "reader-1",
		BookTitle: "Ulysses",
		Config:    cfg,
	}
}

func TestItineraryWorkflowSignalSelection(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	env.RegisterDelayedCallback(func() {
		val, err := env.QueryWorkflow(QueryPhase)
		require.NoError(t, err)
		var status PhaseStatus
		require.NoError(t, val.Get(&status))
		assert.Equal(t, PhaseAwaitingSelection, status.Phase)
		assert.True(t, status.RegionsReady)

		val, err = env.QueryWorkflow(QueryRegions)
		require.NoError(t, err)
		var analysis models.RegionAnalysis
		require.NoError(t, val.Get(&analysis))
		require.Len(t, analysis.Regions, 2)

		env.SignalWorkflow(SignalRegionSelection, models.RegionSelection{
			RegionIDs:  []string{analysis.Regions[0].ID},
			SelectedBy: "reader",
		})
	}, time.Minute)

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{}))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ItineraryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, PhaseComplete, result.Phase)
	assert.Equal(t, "Ulysses", result.BookTitle)
	require.Len(t, result.SelectedRegions, 1)
	require.NotEmpty(t, result.Itinerary.Cities)

	// Composition saw only the selected region's cities.
	selected := map[string]bool{}
	for _, c := range result.SelectedRegions[0].Cities {
		selected[c.Name] = true
	}
	for _, c := range result.Itinerary.Cities {
		assert.True(t, selected[c.Name], "city %s outside selection", c.Name)
	}

	for _, key := range []state.Key{
		state.KeyBookMetadata, state.KeyBookContext, state.KeyReaderProfile,
		state.KeyCityDiscovery, state.KeyLandmarkDiscovery, state.KeyAuthorSites,
		state.KeyRegionAnalysis, state.KeySelectedRegions, state.KeyFinalItinerary,
	} {
		assert.True(t, saved.has(key), "missing state slot %s", key)
	}
}

func TestItineraryWorkflowInvalidSelectionKeepsWaiting(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(SignalRegionSelection, models.RegionSelection{
			RegionIDs: []string{"99"},
		})
	}, time.Minute)
	env.RegisterDelayedCallback(func() {
		// Still awaiting after the rejected signal.
		val, err := env.QueryWorkflow(QueryPhase)
		require.NoError(t, err)
		var status PhaseStatus
		require.NoError(t, val.Get(&status))
		assert.Equal(t, PhaseAwaitingSelection, status.Phase)

		env.SignalWorkflow(SignalRegionSelection, models.RegionSelection{
			RegionIDs: []string{models.SelectAll},
		})
	}, 2*time.Minute)

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{}))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ItineraryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, PhaseComplete, result.Phase)
	assert.Len(t, result.SelectedRegions, 2)
}

func TestItineraryWorkflowAutoSelectAll(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{AutoSelectAll: true}))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ItineraryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, PhaseComplete, result.Phase)
	assert.Len(t, result.SelectedRegions, 2)
	assert.True(t, saved.has(state.KeySelectedRegions))
}

func TestItineraryWorkflowStrictJoinAbortsOnPipelineFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	register(env, ActivityGatherLandmarkEvidence, func(ctx context.Context, in activities.GatherInput) (activities.GatherResult, error) {
		return activities.GatherResult{}, temporal.NewNonRetryableApplicationError("search down", "ExternalCallFailure", nil)
	})

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{
		JoinPolicy:    JoinStrict,
		AutoSelectAll: true,
	}))

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

func TestItineraryWorkflowBestEffortJoinDegrades(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	register(env, ActivityGatherLandmarkEvidence, func(ctx context.Context, in activities.GatherInput) (activities.GatherResult, error) {
		return activities.GatherResult{}, temporal.NewNonRetryableApplicationError("search down", "ExternalCallFailure", nil)
	})

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{AutoSelectAll: true}))

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ItineraryResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, PhaseComplete, result.Phase)

	// The failed pipeline wrote an explicit empty result, so readers can
	// tell it ran and found nothing rather than never running at all.
	require.True(t, saved.has(state.KeyLandmarkDiscovery))
	landmarks := saved.get(state.KeyLandmarkDiscovery)
	require.NotNil(t, landmarks.Landmarks)
	assert.Empty(t, landmarks.Landmarks.Landmarks)
	assert.True(t, saved.has(state.KeyCityDiscovery))
	assert.True(t, saved.has(state.KeyAuthorSites))
}

func TestItineraryWorkflowPhaseTimeoutReportsProgress(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	// Context gathering stalls past the phase deadline, so the metadata
	// phase completes but discovery does not.
	register(env, ActivityGatherBookContext, func(ctx context.Context, in activities.GatherInput) (activities.GatherResult, error) {
		select {
		case <-time.After(5 * time.Second):
			return activities.GatherResult{}, nil
		case <-ctx.Done():
			return activities.GatherResult{}, ctx.Err()
		}
	})

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{
		PhaseTimeout:  200 * time.Millisecond,
		AutoSelectAll: true,
	}))

	require.True(t, env.IsWorkflowCompleted())
	wfErr := env.GetWorkflowError()
	require.Error(t, wfErr)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(wfErr, &appErr))
	assert.Equal(t, "WorkflowTimeout", appErr.Type())

	var details PhaseTimeoutDetails
	require.NoError(t, appErr.Details(&details))
	assert.Equal(t, PhaseDiscovery, details.Phase)
	// Metadata ran to completion before the stall: gather, structure, save.
	assert.GreaterOrEqual(t, details.CompletedSteps, 3)

	// Prior phase state survives the timeout.
	assert.True(t, saved.has(state.KeyBookMetadata))
	assert.False(t, saved.has(state.KeyRegionAnalysis))
}

func TestItineraryWorkflowRunDeadlineBoundsPhases(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	// Metadata gathering stalls. The phase deadline alone would allow it,
	// but the whole-run budget is tighter and must win.
	register(env, ActivityGatherBookMetadata, func(ctx context.Context, in activities.GatherInput) (activities.GatherResult, error) {
		select {
		case <-time.After(time.Hour):
			return activities.GatherResult{}, nil
		case <-ctx.Done():
			return activities.GatherResult{}, ctx.Err()
		}
	})

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{
		PhaseTimeout:    10 * time.Second,
		WorkflowTimeout: 300 * time.Millisecond,
		AutoSelectAll:   true,
	}))

	require.True(t, env.IsWorkflowCompleted())
	wfErr := env.GetWorkflowError()
	require.Error(t, wfErr)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(wfErr, &appErr))
	assert.Equal(t, "WorkflowTimeout", appErr.Type())
	assert.Contains(t, appErr.Error(), "workflow deadline")

	var details PhaseTimeoutDetails
	require.NoError(t, appErr.Details(&details))
	assert.Equal(t, PhaseMetadata, details.Phase)
	assert.Zero(t, details.CompletedSteps)
}

func TestItineraryWorkflowNoRegionsFails(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	saved := newSavedResults()
	registerHappyActivities(env, saved)

	register(env, ActivityStructureCityDiscovery, func(ctx context.Context, in activities.StructureDiscoveryInput) (models.CityDiscovery, error) {
		return models.CityDiscovery{}, nil
	})
	register(env, ActivityStructureLandmarks, func(ctx context.Context, in activities.StructureDiscoveryInput) (models.LandmarkDiscovery, error) {
		return models.LandmarkDiscovery{}, nil
	})

	env.ExecuteWorkflow(ItineraryWorkflow, itineraryInput(ExecutionConfig{}))

	require.True(t, env.IsWorkflowCompleted())
	wfErr := env.GetWorkflowError()
	require.Error(t, wfErr)
	assert.Contains(t, wfErr.Error(), "no visitable regions")
}
