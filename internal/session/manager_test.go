package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/storyland-ai/storyland/internal/circuitbreaker"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	return NewManagerWithClient(wrapper, zaptest.NewLogger(t))
}

func TestCreateAndGet(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "reader-1", "Ulysses", map[string]interface{}{"source": "test"})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	assert.Equal(t, "reader-1", s.UserID)
	assert.Equal(t, "Ulysses", s.BookTitle)
	assert.False(t, s.Active())

	got, err := mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
}

func TestGetMissing(t *testing.T) {
	mgr := testManager(t)
	_, err := mgr.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCreateWithIDRejectsHijack(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	first, err := mgr.CreateWithID(ctx, "shared-id", "reader-1", "Dracula", nil)
	require.NoError(t, err)
	require.Equal(t, "shared-id", first.ID)

	// Same reader gets the existing session back.
	again, err := mgr.CreateWithID(ctx, "shared-id", "reader-1", "Dracula", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	// A different reader must not take over the ID.
	other, err := mgr.CreateWithID(ctx, "shared-id", "reader-2", "Dracula", nil)
	require.NoError(t, err)
	assert.NotEqual(t, "shared-id", other.ID)
	assert.Equal(t, "reader-2", other.UserID)
}

func TestAttachWorkflowAndRecordPhase(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "reader-1", "Kafka on the Shore", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.AttachWorkflow(ctx, s.ID, "itinerary-abc", "run-1"))
	require.NoError(t, mgr.RecordPhase(ctx, s.ID, "awaiting_selection"))

	got, err := mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Active())
	assert.Equal(t, "itinerary-abc", got.WorkflowID)
	assert.Equal(t, "awaiting_selection", got.LastPhase)
}

func TestListUserSessions(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	_, err := mgr.Create(ctx, "reader-1", "Book A", nil)
	require.NoError(t, err)
	_, err = mgr.Create(ctx, "reader-1", "Book B", nil)
	require.NoError(t, err)
	_, err = mgr.Create(ctx, "reader-2", "Book C", nil)
	require.NoError(t, err)

	sessions, err := mgr.ListUserSessions(ctx, "reader-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, "reader-1", s.UserID)
	}
}

func TestDelete(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "reader-1", "Book", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(ctx, s.ID))
	_, err = mgr.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestExpiredSessionIsEvicted(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "reader-1", "Book", nil)
	require.NoError(t, err)

	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, mgr.Update(ctx, s))

	_, err = mgr.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestExtend(t *testing.T) {
	mgr := testManager(t)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "reader-1", "Book", nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Extend(ctx, s.ID, 48*time.Hour))
	got, err := mgr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.After(time.Now().Add(40*time.Hour)))
}
