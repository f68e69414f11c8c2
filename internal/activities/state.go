package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
	"github.com/storyland-ai/storyland/internal/state"
)

// StateActivities persists phase results through the shared state store.
type StateActivities struct {
	store  *state.Store
	logger *zap.Logger
}

func NewStateActivities(store *state.Store, logger *zap.Logger) *StateActivities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateActivities{store: store, logger: logger}
}

// SaveResult writes one phase result to its slot.
func (a *StateActivities) SaveResult(ctx context.Context, input SaveResultInput) error {
	return a.store.Put(ctx, input.SessionID, input.UserID, input.Key, input.Result)
}

// LoadResult reads one phase result; a missing slot is not an error.
func (a *StateActivities) LoadResult(ctx context.Context, input LoadResultInput) (LoadResultOutput, error) {
	res, found, err := a.store.Get(ctx, input.SessionID, input.UserID, input.Key)
	if err != nil {
		return LoadResultOutput{}, err
	}
	return LoadResultOutput{Found: found, Result: res}, nil
}

// LoadPreferences resolves the effective preference profile: inline
// preferences from the request win, then the durable stored profile, then
// defaults. Inline preferences are persisted durably so the next session
// starts from them.
func (a *StateActivities) LoadPreferences(ctx context.Context, input LoadPreferencesInput) (models.TravelPreferences, error) {
	if input.Inline != nil {
		prefs := input.Inline.Normalize()
		if err := prefs.Validate(); err != nil {
			return models.TravelPreferences{}, err
		}
		if input.UserID != "" {
			if err := a.store.Put(ctx, input.SessionID, input.UserID, state.KeyUserPreferences, models.PreferencesResult(prefs)); err != nil {
				return models.TravelPreferences{}, err
			}
		}
		return prefs, nil
	}

	res, found, err := a.store.Get(ctx, input.SessionID, input.UserID, state.KeyReaderProfile)
	if err != nil {
		return models.TravelPreferences{}, err
	}
	if found && res.Preferences != nil {
		return res.Preferences.Normalize(), nil
	}

	a.logger.Debug("No stored preferences, using defaults",
		zap.String("user_id", input.UserID))
	return models.DefaultPreferences(), nil
}

// ClearSession drops all session-scope state after a terminal phase.
func (a *StateActivities) ClearSession(ctx context.Context, sessionID string) error {
	return a.store.Clear(ctx, sessionID)
}
