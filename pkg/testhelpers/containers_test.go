//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_MigrationsApplied(t *testing.T) {
	testDB := GetTestDB(t)

	ctx := context.Background()

	var columns int
	err := testDB.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.columns WHERE table_name = 'feed_artifacts'`).
		Scan(&columns)
	if err != nil {
		t.Fatalf("failed to inspect feed_artifacts: %v", err)
	}

	if columns != 6 {
		t.Errorf("expected 6 columns in feed_artifacts, got %d", columns)
	}
}
