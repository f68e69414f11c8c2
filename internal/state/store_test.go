package state

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
)

type memDurable struct {
	values map[string]models.PhaseResult
}

func newMemDurable() *memDurable {
	return &memDurable{values: make(map[string]models.PhaseResult)}
}

func (m *memDurable) PutUserValue(_ context.Context, userID string, key Key, res models.PhaseResult) error {
	m.values[userID+"/"+string(key)] = res
	return nil
}

func (m *memDurable) GetUserValue(_ context.Context, userID string, key Key) (models.PhaseResult, bool, error) {
	res, ok := m.values[userID+"/"+string(key)]
	return res, ok, nil
}

func testStore(t *testing.T) (*Store, *memDurable) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	durable := newMemDurable()
	return NewStore(rdb, durable, zap.NewNop()), durable
}

func TestKeyScopes(t *testing.T) {
	assert.Equal(t, ScopeSession, KeyCityDiscovery.Scope())
	assert.Equal(t, ScopeUser, KeyUserPreferences.Scope())
	assert.Equal(t, ScopeApp, KeyAppGazetteerVersion.Scope())

	assert.False(t, KeyCityDiscovery.Durable())
	assert.True(t, KeyUserPreferences.Durable())
}

func TestPutGetSessionKey(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	meta := models.BookMetadata{BookTitle: "Ulysses", Author: "James Joyce"}
	require.NoError(t, store.Put(ctx, "sess-1", "reader-1", KeyBookMetadata, models.MetadataResult(meta)))

	got, ok, err := store.Get(ctx, "sess-1", "reader-1", KeyBookMetadata)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta, *got.Metadata)

	// Other sessions do not see it.
	_, ok, err = store.Get(ctx, "sess-2", "reader-1", KeyBookMetadata)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutRejectsMismatchedKind(t *testing.T) {
	store, _ := testStore(t)

	err := store.Put(context.Background(), "sess-1", "reader-1", KeyBookMetadata,
		models.CityResult(models.CityDiscovery{}))
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestPutRejectsInvalidResult(t *testing.T) {
	store, _ := testStore(t)

	err := store.Put(context.Background(), "sess-1", "reader-1", KeyBookMetadata, models.PhaseResult{
		Kind: models.KindBookMetadata,
	})
	assert.Error(t, err)
}

func TestDurableKeyRoutesToBackend(t *testing.T) {
	store, durable := testStore(t)
	ctx := context.Background()

	prefs := models.DefaultPreferences()
	require.NoError(t, store.Put(ctx, "sess-1", "reader-1", KeyUserPreferences, models.PreferencesResult(prefs)))
	assert.Len(t, durable.values, 1)

	got, ok, err := store.Get(ctx, "ignored-session", "reader-1", KeyUserPreferences)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, prefs, *got.Preferences)
}

func TestReaderProfileReadsThroughToDurablePreferences(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	// A previous session persisted preferences for this reader.
	prefs := models.DefaultPreferences()
	prefs.PreferredPace = models.PaceRelaxed
	require.NoError(t, store.Put(ctx, "old-session", "reader-1", KeyUserPreferences, models.PreferencesResult(prefs)))

	// A brand-new session sees them without any copy step.
	got, ok, err := store.Get(ctx, "new-session", "reader-1", KeyReaderProfile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.PaceRelaxed, got.Preferences.PreferredPace)

	// A session-local override wins over the durable value.
	override := prefs
	override.PreferredPace = models.PaceFastPaced
	require.NoError(t, store.Put(ctx, "new-session", "reader-1", KeyReaderProfile, models.PreferencesResult(override)))

	got, ok, err = store.Get(ctx, "new-session", "reader-1", KeyReaderProfile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.PaceFastPaced, got.Preferences.PreferredPace)
}

func TestSnapshotAndClear(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "sess-1", "reader-1", KeyBookMetadata,
		models.MetadataResult(models.BookMetadata{BookTitle: "Dracula", Author: "Bram Stoker"})))
	require.NoError(t, store.Put(ctx, "sess-1", "reader-1", KeyCityDiscovery,
		models.CityResult(models.CityDiscovery{Cities: []models.CityInfo{{Name: "Whitby", Country: "England"}}})))

	snap, err := store.Snapshot(ctx, "sess-1", "reader-1")
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.Contains(t, snap, KeyBookMetadata)
	assert.Contains(t, snap, KeyCityDiscovery)

	require.NoError(t, store.Clear(ctx, "sess-1"))
	snap, err = store.Snapshot(ctx, "sess-1", "")
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestAppValues(t *testing.T) {
	store, _ := testStore(t)
	ctx := context.Background()

	_, ok, err := store.GetAppValue(ctx, KeyAppGazetteerVersion)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetAppValue(ctx, KeyAppGazetteerVersion, "v1"))
	v, ok, err := store.GetAppValue(ctx, KeyAppGazetteerVersion)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	assert.Error(t, store.SetAppValue(ctx, KeyBookMetadata, "nope"))
}
