package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

func TestPostgresStore_SaveRaw(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	payload := []byte(`{"items":[]}`)
	mock.ExpectExec(`INSERT INTO feed_artifacts`).
		WithArgs(pgxmock.AnyArg(), "run-1", "raw", "001_primary.json", payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock, "run-1", zap.NewNop())
	loc, err := store.SaveRaw(context.Background(), "primary", payload)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "pg:"))
	_, err = uuid.Parse(strings.TrimPrefix(loc, "pg:"))
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveJSON(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO feed_artifacts`).
		WithArgs(pgxmock.AnyArg(), "run-1", "json", "report.json", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresStore(mock, "run-1", zap.NewNop())
	_, err = store.SaveJSON(context.Background(), "report", map[string]string{"a": "b"})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO feed_artifacts`).WillReturnError(assert.AnError)

	store := NewPostgresStore(mock, "run-1", zap.NewNop())
	_, err = store.SaveRaw(context.Background(), "primary", []byte(`{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert artifact")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRaw(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT content FROM feed_artifacts`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"content"}).AddRow([]byte(`[1,2]`)))

	store := NewPostgresStore(mock, "run-1", zap.NewNop())
	data, err := store.LoadRaw(context.Background(), "pg:"+id.String())

	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(data))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRawNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT content FROM feed_artifacts`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresStore(mock, "run-1", zap.NewNop())
	_, err = store.LoadRaw(context.Background(), "pg:"+id.String())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRawRejectsForeignLocations(t *testing.T) {
	store := NewPostgresStore(nil, "run-1", zap.NewNop())

	_, err := store.LoadRaw(context.Background(), "s3://bucket/key")
	assert.Error(t, err)

	_, err = store.LoadRaw(context.Background(), "pg:not-a-uuid")
	assert.Error(t, err)
}
