package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

// FileStore keeps artifacts under <root>/<run id>/, raw payloads in raw/.
type FileStore struct {
	runID  string
	runDir string
	seq    atomic.Int64
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the run directory.
func NewFileStore(root, runID string, logger *zap.Logger) (*FileStore, error) {
	runDir := filepath.Join(root, runID)
	if err := os.MkdirAll(filepath.Join(runDir, "raw"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &FileStore{
		runID:  runID,
		runDir: runDir,
		logger: logger.Named("storage"),
	}, nil
}

func (s *FileStore) RunID() string { return s.runID }

// Dir returns the run directory.
func (s *FileStore) Dir() string { return s.runDir }

func (s *FileStore) SaveRaw(ctx context.Context, label string, payload []byte) (string, error) {
	path := filepath.Join(s.runDir, "raw", rawName(s.seq.Add(1), label))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("failed to write raw payload: %w", err)
	}
	s.logger.Debug("Saved raw payload", zap.String("path", path), zap.Int("bytes", len(payload)))
	return path, nil
}

func (s *FileStore) LoadRaw(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read raw payload: %w", err)
	}
	return data, nil
}

func (s *FileStore) SaveJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := marshalArtifact(v)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.runDir, jsonName(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	s.logger.Debug("Saved artifact", zap.String("path", path))
	return path, nil
}
