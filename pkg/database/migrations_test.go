//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/database"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/testhelpers"
)

func TestMigrate_Idempotent(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	// GetTestDB already migrated; a second run is a no-op.
	require.NoError(t, database.Migrate(testDB.ConnStr, testhelpers.MigrationsPath(), zap.NewNop()))

	var version int
	var dirty bool
	err := testDB.DB.QueryRow(context.Background(),
		`SELECT version, dirty FROM schema_migrations`).Scan(&version, &dirty)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.False(t, dirty)
}

func TestMigrate_BadPath(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)

	err := database.Migrate(testDB.ConnStr, "/nonexistent/migrations", zap.NewNop())
	assert.Error(t, err)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := database.Connect(context.Background(), "://not-a-url", 1)
	assert.Error(t, err)
}
