package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

const pgScheme = "pg:"

// Artifact kinds stored in feed_artifacts.kind.
const (
	artifactKindRaw  = "raw"
	artifactKindJSON = "json"
)

// artifactPool is the subset of pgxpool.Pool the store needs.
type artifactPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps artifacts as rows of feed_artifacts, addressed as "pg:<uuid>".
type PostgresStore struct {
	pool   artifactPool
	runID  string
	seq    atomic.Int64
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over an open pool. Migrations must have run.
func NewPostgresStore(pool artifactPool, runID string, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		runID:  runID,
		logger: logger.Named("storage"),
	}
}

func (s *PostgresStore) RunID() string { return s.runID }

func (s *PostgresStore) insert(ctx context.Context, kind, name string, content []byte) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feed_artifacts (id, run_id, kind, name, content) VALUES ($1, $2, $3, $4, $5)`,
		id, s.runID, kind, name, content)
	if err != nil {
		return "", fmt.Errorf("failed to insert artifact %s: %w", name, err)
	}
	s.logger.Debug("Saved artifact row",
		zap.String("id", id.String()),
		zap.String("kind", kind),
		zap.String("name", name))
	return pgScheme + id.String(), nil
}

func (s *PostgresStore) SaveRaw(ctx context.Context, label string, payload []byte) (string, error) {
	return s.insert(ctx, artifactKindRaw, rawName(s.seq.Add(1), label), payload)
}

func (s *PostgresStore) SaveJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := marshalArtifact(v)
	if err != nil {
		return "", err
	}
	return s.insert(ctx, artifactKindJSON, jsonName(name), data)
}

func (s *PostgresStore) LoadRaw(ctx context.Context, location string) ([]byte, error) {
	raw, ok := strings.CutPrefix(location, pgScheme)
	if !ok {
		return nil, fmt.Errorf("not a postgres location: %q", location)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact id %q: %w", raw, err)
	}

	var content []byte
	err = s.pool.QueryRow(ctx, `SELECT content FROM feed_artifacts WHERE id = $1`, id).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", location, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	return content, nil
}
