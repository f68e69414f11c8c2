package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/regions"
)

// RegionActivities runs the deterministic analysis steps. No LLM, no tools:
// the same discovery output always yields the same regions.
type RegionActivities struct {
	logger *zap.Logger
}

func NewRegionActivities(logger *zap.Logger) *RegionActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegionActivities{logger: logger}
}

// AnalyzeRegions clusters discovered cities into travel regions.
func (r *RegionActivities) AnalyzeRegions(ctx context.Context, input AnalyzeRegionsInput) (models.RegionAnalysis, error) {
	analysis := regions.Group(input.Cities, input.Landmarks, input.AuthorSites)
	if err := analysis.Validate(); err != nil {
		return models.RegionAnalysis{}, err
	}

	r.logger.Info("Region analysis complete",
		zap.Int("cities", len(input.Cities)),
		zap.Int("regions", len(analysis.Regions)),
	)
	return analysis, nil
}
