package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/storyland-ai/storyland/internal/activities"
	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/state"
)

// The three discovery pipelines. Each gathers evidence, structures it, and
// writes its own run field and its own state key; the slots are disjoint so
// the pipelines can run concurrently without coordination.

func (w *itineraryRun) cityPipeline(ctx workflow.Context) error {
	tctx := withToolOptions(ctx, w.cfg.PhaseTimeout)

	var gathered activities.GatherResult
	if err := w.exec(tctx, ActivityGatherCityEvidence, w.gatherInput(), &gathered); err != nil {
		return err
	}

	var cities models.CityDiscovery
	if err := w.exec(tctx, ActivityStructureCityDiscovery, activities.StructureDiscoveryInput{
		BookTitle: w.title,
		Author:    w.author,
		Evidence:  gathered.Evidence,
	}, &cities); err != nil {
		return err
	}

	// Region grouping needs coordinates; fill them in before the slot is
	// published.
	var geocoded activities.GeocodeResult
	if err := w.exec(tctx, ActivityGeocodeCities, activities.GeocodeInput{Cities: cities.Cities}, &geocoded); err != nil {
		return err
	}
	cities.Cities = geocoded.Cities

	w.cities = cities
	return w.save(ctx, state.KeyCityDiscovery, models.CityResult(cities))
}

func (w *itineraryRun) landmarkPipeline(ctx workflow.Context) error {
	tctx := withToolOptions(ctx, w.cfg.PhaseTimeout)

	var gathered activities.GatherResult
	if err := w.exec(tctx, ActivityGatherLandmarkEvidence, w.gatherInput(), &gathered); err != nil {
		return err
	}

	var landmarks models.LandmarkDiscovery
	if err := w.exec(tctx, ActivityStructureLandmarks, activities.StructureDiscoveryInput{
		BookTitle: w.title,
		Author:    w.author,
		Evidence:  gathered.Evidence,
	}, &landmarks); err != nil {
		return err
	}

	w.landmarks = landmarks
	return w.save(ctx, state.KeyLandmarkDiscovery, models.LandmarkResult(landmarks))
}

func (w *itineraryRun) authorSitePipeline(ctx workflow.Context) error {
	tctx := withToolOptions(ctx, w.cfg.PhaseTimeout)

	var gathered activities.GatherResult
	if err := w.exec(tctx, ActivityGatherAuthorSiteEvidence, w.gatherInput(), &gathered); err != nil {
		return err
	}

	var sites models.AuthorSites
	if err := w.exec(tctx, ActivityStructureAuthorSites, activities.StructureDiscoveryInput{
		BookTitle: w.title,
		Author:    w.author,
		Evidence:  gathered.Evidence,
	}, &sites); err != nil {
		return err
	}

	w.sites = sites
	return w.save(ctx, state.KeyAuthorSites, models.AuthorSitesResult(sites))
}
