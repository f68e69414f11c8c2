package state

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/models"
)

func testSQLBackend(t *testing.T) (*SQLBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLBackend(sqlx.NewDb(db, "sqlmock"), zap.NewNop()), mock
}

func TestSQLBackendMigrate(t *testing.T) {
	backend, mock := testSQLBackend(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS user_state").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, backend.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendPutUserValue(t *testing.T) {
	backend, mock := testSQLBackend(t)

	mock.ExpectExec("INSERT INTO user_state").
		WithArgs("reader-1", string(KeyUserPreferences), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := backend.PutUserValue(context.Background(), "reader-1", KeyUserPreferences,
		models.PreferencesResult(models.DefaultPreferences()))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendPutRequiresUserID(t *testing.T) {
	backend, _ := testSQLBackend(t)
	err := backend.PutUserValue(context.Background(), "", KeyUserPreferences,
		models.PreferencesResult(models.DefaultPreferences()))
	assert.Error(t, err)
}

func TestSQLBackendGetUserValue(t *testing.T) {
	backend, mock := testSQLBackend(t)

	stored := models.PreferencesResult(models.DefaultPreferences())
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM user_state").
		WithArgs("reader-1", string(KeyUserPreferences)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(payload)))

	got, ok, err := backend.GetUserValue(context.Background(), "reader-1", KeyUserPreferences)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBackendGetMissingRow(t *testing.T) {
	backend, mock := testSQLBackend(t)

	mock.ExpectQuery("SELECT payload FROM user_state").
		WithArgs("reader-1", string(KeyUserPreferences)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, ok, err := backend.GetUserValue(context.Background(), "reader-1", KeyUserPreferences)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLBackendGetEmptyUserID(t *testing.T) {
	backend, _ := testSQLBackend(t)
	_, ok, err := backend.GetUserValue(context.Background(), "", KeyUserPreferences)
	require.NoError(t, err)
	assert.False(t, ok)
}
