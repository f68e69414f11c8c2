package regions

import (
	"errors"
	"fmt"

	"github.com/storyland-ai/storyland/internal/models"
)

var (
	// ErrEmptySelection means the reader submitted no region IDs.
	ErrEmptySelection = errors.New("regions: empty selection")
	// ErrNoRegions means there is nothing to select from.
	ErrNoRegions = errors.New("regions: no regions available")
)

// UnknownRegionError reports a selected ID that does not exist in the
// analysis. The submission is rejected whole; valid IDs in the same request
// are not applied.
type UnknownRegionError struct {
	ID string
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("regions: unknown region id %q", e.ID)
}

// ValidateSelection checks a reader's selection against the presented
// analysis and returns the selected options in analysis order. The special
// SelectAll sentinel, or an explicit list covering every region, selects
// everything.
func ValidateSelection(analysis models.RegionAnalysis, sel models.RegionSelection) ([]models.RegionOption, error) {
	if len(analysis.Regions) == 0 {
		return nil, ErrNoRegions
	}
	if len(sel.RegionIDs) == 0 {
		return nil, ErrEmptySelection
	}

	if len(sel.RegionIDs) == 1 && sel.RegionIDs[0] == models.SelectAll {
		out := make([]models.RegionOption, len(analysis.Regions))
		copy(out, analysis.Regions)
		return out, nil
	}

	wanted := make(map[string]struct{}, len(sel.RegionIDs))
	for _, id := range sel.RegionIDs {
		if _, ok := analysis.Option(id); !ok {
			return nil, &UnknownRegionError{ID: id}
		}
		wanted[id] = struct{}{}
	}

	out := make([]models.RegionOption, 0, len(wanted))
	for _, r := range analysis.Regions {
		if _, ok := wanted[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// AutoSelection returns the selection a coordinator applies without human
// input: everything, attributed to the system.
func AutoSelection() models.RegionSelection {
	return models.RegionSelection{
		RegionIDs:  []string{models.SelectAll},
		SelectedBy: "auto",
	}
}
