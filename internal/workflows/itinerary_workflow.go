// Package workflows contains the itinerary orchestration: a phase state
// machine over Temporal with a human-in-the-loop suspension point between
// discovery and composition.
package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/storyland-ai/storyland/internal/activities"
	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/regions"
	"github.com/storyland-ai/storyland/internal/state"
	"github.com/storyland-ai/storyland/internal/streaming"
)

// itineraryRun holds the per-run workflow state. Discovery pipelines each
// write their own field; no slot is touched by two concurrent coroutines.
type itineraryRun struct {
	input ItineraryInput
	cfg   ExecutionConfig

	phase   Phase
	steps   int
	elapsed time.Duration

	title  string
	author string

	bookCtx   models.BookContext
	prefs     models.TravelPreferences
	cities    models.CityDiscovery
	landmarks models.LandmarkDiscovery
	sites     models.AuthorSites

	analysis *models.RegionAnalysis
	selected []models.RegionOption

	final *ItineraryResult
}

// ItineraryWorkflow turns a book title into a region-grouped travel
// itinerary: metadata resolution, concurrent discovery, a signal-gated
// region selection, then composition. Phase results are persisted as they
// complete, so a timeout never loses prior phases' progress.
func ItineraryWorkflow(ctx workflow.Context, input ItineraryInput) (ItineraryResult, error) {
	logger := workflow.GetLogger(ctx)
	w := &itineraryRun{
		input: input,
		cfg:   input.Config.normalized(),
		phase: PhaseIdle,
		title: input.BookTitle,
	}

	if input.BookTitle == "" {
		w.phase = PhaseFailed
		return w.snapshot(), temporal.NewApplicationError("book title is required", "ValidationFailure")
	}
	if err := w.registerQueries(ctx); err != nil {
		w.phase = PhaseFailed
		return w.snapshot(), err
	}

	logger.Info("Itinerary workflow started",
		"session_id", input.SessionID,
		"book_title", input.BookTitle,
		"join_policy", w.cfg.JoinPolicy,
	)

	if err := w.runPhase(ctx, PhaseMetadata, w.metadataPhase); err != nil {
		return w.snapshot(), w.fail(ctx, err)
	}
	if err := w.runPhase(ctx, PhaseDiscovery, w.discoveryPhase); err != nil {
		return w.snapshot(), w.fail(ctx, err)
	}

	w.phase = PhaseAwaitingSelection
	w.emit(ctx, streaming.EventRegionsReady, "region options ready for selection")
	selection, err := w.awaitSelection(ctx)
	if err != nil {
		return w.snapshot(), w.fail(ctx, err)
	}
	if err := w.save(ctx, state.KeySelectedRegions, models.SelectionResult(selection)); err != nil {
		return w.snapshot(), w.fail(ctx, err)
	}
	w.emit(ctx, streaming.EventSelectionReceived, "selected by "+selection.SelectedBy)

	if err := w.runPhase(ctx, PhaseComposition, w.compositionPhase); err != nil {
		return w.snapshot(), w.fail(ctx, err)
	}

	w.phase = PhaseComplete
	w.emit(ctx, streaming.EventWorkflowCompleted, "")
	result := w.snapshot()
	w.final = &result
	logger.Info("Itinerary workflow complete",
		"session_id", input.SessionID,
		"regions", len(w.selected),
		"completed_steps", w.steps,
	)
	return result, nil
}

// runPhase executes fn under the tighter of the per-phase deadline and what
// is left of the whole-run budget. Time spent in earlier phases counts
// against the budget; the selection wait does not, since it sits between
// phases. On expiry in-flight activities of the phase are cancelled; results
// already persisted stay put.
func (w *itineraryRun) runPhase(ctx workflow.Context, phase Phase, fn func(workflow.Context) error) error {
	w.phase = phase
	logger := workflow.GetLogger(ctx)
	logger.Info("Phase started", "phase", string(phase))
	w.emit(ctx, streaming.EventPhaseStarted, "")

	deadline := w.cfg.PhaseTimeout
	remaining := w.cfg.WorkflowTimeout - w.elapsed
	budgetBound := remaining < deadline
	if budgetBound {
		deadline = remaining
	}
	if deadline <= 0 {
		w.phase = PhaseTimedOut
		return w.timeoutError(phase, budgetBound)
	}

	phaseCtx, cancel := workflow.WithCancel(ctx)
	defer cancel()

	done := workflow.NewChannel(ctx)
	var phaseErr error
	workflow.Go(phaseCtx, func(c workflow.Context) {
		phaseErr = fn(c)
		done.Close()
	})

	start := workflow.Now(ctx)
	var timedOut bool
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(done, func(workflow.ReceiveChannel, bool) {})
	sel.AddFuture(workflow.NewTimer(phaseCtx, deadline), func(workflow.Future) {
		timedOut = true
	})
	sel.Select(ctx)
	w.elapsed += workflow.Now(ctx).Sub(start)

	if timedOut {
		cancel()
		w.phase = PhaseTimedOut
		logger.Warn("Phase timed out",
			"phase", string(phase),
			"workflow_deadline", budgetBound,
			"completed_steps", w.steps,
		)
		return w.timeoutError(phase, budgetBound)
	}
	if phaseErr != nil {
		return phaseErr
	}
	logger.Info("Phase complete", "phase", string(phase), "completed_steps", w.steps)
	w.emit(ctx, streaming.EventPhaseCompleted, "")
	return nil
}

func (w *itineraryRun) timeoutError(phase Phase, budgetBound bool) error {
	msg := "phase " + string(phase) + " timed out after " + w.cfg.PhaseTimeout.String()
	if budgetBound {
		msg = "workflow deadline " + w.cfg.WorkflowTimeout.String() + " exhausted during phase " + string(phase)
	}
	return temporal.NewApplicationError(msg, "WorkflowTimeout",
		PhaseTimeoutDetails{Phase: phase, CompletedSteps: w.steps})
}

// metadataPhase resolves the book. An unresolved title falls back to what
// the reader typed; it never invents a match.
func (w *itineraryRun) metadataPhase(ctx workflow.Context) error {
	tctx := withToolOptions(ctx, w.cfg.PhaseTimeout)

	var gathered activities.GatherResult
	if err := w.exec(tctx, ActivityGatherBookMetadata, w.gatherInput(), &gathered); err != nil {
		return err
	}

	var meta models.BookMetadata
	if err := w.exec(tctx, ActivityStructureBookMetadata, activities.StructureMetadataInput{
		RawTitle: w.input.BookTitle,
		Evidence: gathered.Evidence,
	}, &meta); err != nil {
		return err
	}
	if meta.Empty() {
		meta = models.BookMetadata{BookTitle: w.input.BookTitle, Author: w.input.Author}
	}
	w.title = meta.BookTitle
	w.author = meta.Author

	return w.save(ctx, state.KeyBookMetadata, models.MetadataResult(meta))
}

// discoveryPhase runs context research, preference lookup, the three-way
// discovery fan-out, then deterministic region grouping.
func (w *itineraryRun) discoveryPhase(ctx workflow.Context) error {
	tctx := withToolOptions(ctx, w.cfg.PhaseTimeout)

	var gathered activities.GatherResult
	if err := w.exec(tctx, ActivityGatherBookContext, w.gatherInput(), &gathered); err != nil {
		return err
	}
	if err := w.exec(tctx, ActivityStructureBookContext, activities.StructureContextInput{
		BookTitle: w.title,
		Author:    w.author,
		Evidence:  gathered.Evidence,
	}, &w.bookCtx); err != nil {
		return err
	}
	if err := w.save(ctx, state.KeyBookContext, models.ContextResult(w.bookCtx)); err != nil {
		return err
	}

	if err := w.exec(withStateOptions(ctx), ActivityLoadPreferences, activities.LoadPreferencesInput{
		SessionID: w.input.SessionID,
		UserID:    w.input.UserID,
		Inline:    w.input.Preferences,
	}, &w.prefs); err != nil {
		return err
	}
	if err := w.save(ctx, state.KeyReaderProfile, models.PreferencesResult(w.prefs)); err != nil {
		return err
	}

	if err := w.runDiscoveryGroup(ctx); err != nil {
		return err
	}

	var analysis models.RegionAnalysis
	if err := w.exec(withStateOptions(ctx), ActivityAnalyzeRegions, activities.AnalyzeRegionsInput{
		Cities:      w.cities.Cities,
		Landmarks:   w.landmarks.Landmarks,
		AuthorSites: w.sites.Sites,
	}, &analysis); err != nil {
		return err
	}
	w.analysis = &analysis
	return w.save(ctx, state.KeyRegionAnalysis, models.RegionsResult(analysis))
}

// runDiscoveryGroup fans out the three discovery pipelines. Under strict
// join the first failure cancels the group; under best effort a failed
// pipeline degrades to an explicit empty result and the run continues.
func (w *itineraryRun) runDiscoveryGroup(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	groupCtx, cancelGroup := workflow.WithCancel(ctx)
	defer cancelGroup()

	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
			if w.cfg.JoinPolicy == JoinStrict {
				cancelGroup()
			}
		}
	}

	wg := workflow.NewWaitGroup(ctx)
	wg.Add(3)
	workflow.Go(groupCtx, func(c workflow.Context) {
		defer wg.Done()
		if err := w.cityPipeline(c); err != nil {
			logger.Warn("City discovery failed", "error", err.Error())
			fail(err)
			w.degrade(c, state.KeyCityDiscovery, models.CityResult(models.CityDiscovery{}))
		}
	})
	workflow.Go(groupCtx, func(c workflow.Context) {
		defer wg.Done()
		if err := w.landmarkPipeline(c); err != nil {
			logger.Warn("Landmark discovery failed", "error", err.Error())
			fail(err)
			w.degrade(c, state.KeyLandmarkDiscovery, models.LandmarkResult(models.LandmarkDiscovery{}))
		}
	})
	workflow.Go(groupCtx, func(c workflow.Context) {
		defer wg.Done()
		if err := w.authorSitePipeline(c); err != nil {
			logger.Warn("Author site discovery failed", "error", err.Error())
			fail(err)
			w.degrade(c, state.KeyAuthorSites, models.AuthorSitesResult(models.AuthorSites{}))
		}
	})
	wg.Wait(ctx)

	if firstErr != nil && w.cfg.JoinPolicy == JoinStrict {
		return firstErr
	}
	return nil
}

// degrade persists an explicit empty result for a failed best-effort
// pipeline, so downstream readers can tell "found nothing" from "never
// ran". Uses the parent context: the group context stays intact under best
// effort, but the write must survive even if a sibling failed first.
func (w *itineraryRun) degrade(ctx workflow.Context, key state.Key, empty models.PhaseResult) {
	if w.cfg.JoinPolicy == JoinStrict {
		return
	}
	if err := w.save(ctx, key, empty); err != nil {
		workflow.GetLogger(ctx).Warn("Empty result write failed",
			"key", string(key), "error", err.Error())
	}
}

// awaitSelection suspends until a valid selection arrives. There is no
// deadline: human response time is unbounded, and the caller may abandon
// the run at this point with session state intact.
func (w *itineraryRun) awaitSelection(ctx workflow.Context) (models.RegionSelection, error) {
	logger := workflow.GetLogger(ctx)
	analysis := *w.analysis

	if len(analysis.Regions) == 0 {
		return models.RegionSelection{}, temporal.NewApplicationError(
			"no visitable regions discovered", "ValidationFailure")
	}

	if w.cfg.AutoSelectAll {
		sel := regions.AutoSelection()
		selected, err := regions.ValidateSelection(analysis, sel)
		if err != nil {
			return models.RegionSelection{}, err
		}
		w.selected = selected
		logger.Info("Regions auto-selected", "regions", len(selected))
		return sel, nil
	}

	logger.Info("Awaiting region selection",
		"session_id", w.input.SessionID,
		"regions", len(analysis.Regions),
	)
	ch := workflow.GetSignalChannel(ctx, SignalRegionSelection)
	for {
		var sel models.RegionSelection
		ch.Receive(ctx, &sel)

		selected, err := regions.ValidateSelection(analysis, sel)
		if err != nil {
			// Rejected input is not fatal: keep waiting for a valid one.
			logger.Warn("Region selection rejected", "error", err.Error())
			continue
		}
		w.selected = selected
		logger.Info("Region selection accepted",
			"regions", len(selected),
			"selected_by", sel.SelectedBy,
		)
		return sel, nil
	}
}

// compositionPhase builds the final itinerary from the selected regions.
func (w *itineraryRun) compositionPhase(ctx workflow.Context) error {
	tctx := withToolOptions(ctx, w.cfg.PhaseTimeout)

	var itinerary models.TripItinerary
	if err := w.exec(tctx, ActivityComposeItinerary, activities.ComposeInput{
		BookTitle:       w.title,
		Author:          w.author,
		BookContext:     w.bookCtx,
		SelectedRegions: w.selected,
		Preferences:     w.prefs,
	}, &itinerary); err != nil {
		return err
	}
	if err := w.save(ctx, state.KeyFinalItinerary, models.ItineraryResult(itinerary)); err != nil {
		return err
	}

	result := w.snapshot()
	result.Itinerary = itinerary
	w.final = &result
	return nil
}

func (w *itineraryRun) registerQueries(ctx workflow.Context) error {
	if err := workflow.SetQueryHandler(ctx, QueryPhase, func() (PhaseStatus, error) {
		return PhaseStatus{
			Phase:          w.phase,
			CompletedSteps: w.steps,
			RegionsReady:   w.analysis != nil,
		}, nil
	}); err != nil {
		return err
	}
	if err := workflow.SetQueryHandler(ctx, QueryRegions, func() (models.RegionAnalysis, error) {
		if w.analysis == nil {
			return models.RegionAnalysis{}, errors.New("region analysis not ready")
		}
		return *w.analysis, nil
	}); err != nil {
		return err
	}
	return workflow.SetQueryHandler(ctx, QueryItinerary, func() (ItineraryResult, error) {
		if w.final == nil {
			return ItineraryResult{}, errors.New("itinerary not ready")
		}
		return *w.final, nil
	})
}

// emit publishes a progress event to stream subscribers, best effort and
// outside the step count.
func (w *itineraryRun) emit(ctx workflow.Context, eventType, message string) {
	_ = workflow.ExecuteActivity(withStateOptions(ctx), ActivityPublishEvent, streaming.Event{
		WorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID,
		SessionID:  w.input.SessionID,
		Type:       eventType,
		Phase:      string(w.phase),
		Message:    message,
		Timestamp:  workflow.Now(ctx),
	}).Get(ctx, nil)
}

// exec runs one named activity and counts it as a completed step on success.
func (w *itineraryRun) exec(ctx workflow.Context, name string, arg, out interface{}) error {
	if err := workflow.ExecuteActivity(ctx, name, arg).Get(ctx, out); err != nil {
		return err
	}
	w.steps++
	return nil
}

// save persists one phase result to its state slot.
func (w *itineraryRun) save(ctx workflow.Context, key state.Key, res models.PhaseResult) error {
	return w.exec(withStateOptions(ctx), ActivitySaveResult, activities.SaveResultInput{
		SessionID: w.input.SessionID,
		UserID:    w.input.UserID,
		Key:       key,
		Result:    res,
	}, nil)
}

func (w *itineraryRun) gatherInput() activities.GatherInput {
	return activities.GatherInput{
		SessionID: w.input.SessionID,
		BookTitle: w.title,
		Author:    w.author,
	}
}

func (w *itineraryRun) snapshot() ItineraryResult {
	r := ItineraryResult{
		SessionID:       w.input.SessionID,
		BookTitle:       w.title,
		Author:          w.author,
		SelectedRegions: w.selected,
		Phase:           w.phase,
		CompletedSteps:  w.steps,
	}
	if w.final != nil {
		r.Itinerary = w.final.Itinerary
	}
	return r
}

func (w *itineraryRun) fail(ctx workflow.Context, err error) error {
	if w.phase != PhaseTimedOut {
		w.phase = PhaseFailed
	}
	workflow.GetLogger(ctx).Error("Itinerary workflow failed",
		"session_id", w.input.SessionID,
		"phase", string(w.phase),
		"error", err.Error(),
	)
	w.emit(ctx, streaming.EventWorkflowFailed, err.Error())
	return err
}

// withToolOptions configures activities whose clients retry internally with
// their own classification and backoff, so Temporal level retries stay off.
func withToolOptions(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
}

// withStateOptions configures fast local activities (state reads/writes,
// deterministic analysis) with a short timeout and a shallow retry.
func withStateOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
}
