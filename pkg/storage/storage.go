// Package storage is the artifact collaborator: raw payloads fetched during
// discovery and the JSON artifacts produced by inference.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/config"
	"github.com/ekaya-inc/ekaya-feedmap/pkg/database"
)

// maxLabelLength bounds the label part of stored raw payload names.
const maxLabelLength = 60

// Store persists artifacts for one run. Implementations are safe for concurrent use.
type Store interface {
	// RunID identifies the run all artifacts belong to.
	RunID() string
	// SaveRaw stores a fetched payload and returns its location.
	SaveRaw(ctx context.Context, label string, payload []byte) (string, error)
	// LoadRaw returns a payload previously returned by SaveRaw.
	LoadRaw(ctx context.Context, path string) ([]byte, error)
	// SaveJSON stores v as indented JSON under name and returns its location.
	SaveJSON(ctx context.Context, name string, v any) (string, error)
}

// NewRunID returns a sortable run identifier: yyyymmdd-hhmmss-<8 hex>.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// New opens the configured backend. The returned close function releases
// backend resources and is never nil.
func New(ctx context.Context, cfg *config.Config, runID string, logger *zap.Logger) (Store, func(), error) {
	noop := func() {}
	if runID == "" {
		runID = NewRunID(time.Now())
	}

	switch cfg.Storage.Backend {
	case config.StorageBackendFile, "":
		store, err := NewFileStore(cfg.Storage.Dir, runID, logger)
		return store, noop, err

	case config.StorageBackendS3:
		store, err := NewS3Store(ctx, S3Options{
			Bucket:   cfg.Storage.S3Bucket,
			Prefix:   cfg.Storage.S3Prefix,
			Region:   cfg.Storage.S3Region,
			Endpoint: config.ResolveEndpointForDocker(cfg.Storage.S3Endpoint),
		}, runID, logger)
		return store, noop, err

	case config.StorageBackendPostgres:
		db, err := database.NewConnection(ctx, &cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		return NewPostgresStore(db.Pool, runID, logger), db.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// rawName is the stored name of the seq-th raw payload.
func rawName(seq int64, label string) string {
	return fmt.Sprintf("%03d_%s.json", seq, sanitizeLabel(label))
}

// sanitizeLabel makes a label safe for file names and object keys.
func sanitizeLabel(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(label) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > maxLabelLength {
		out = strings.TrimRight(out[:maxLabelLength], "_")
	}
	if out == "" {
		return "payload"
	}
	return out
}

// ArtifactName joins a kind prefix and a payload label into a safe artifact name.
func ArtifactName(prefix, label string) string {
	return prefix + "_" + sanitizeLabel(label)
}

// jsonName ensures an artifact name carries the .json extension.
func jsonName(name string) string {
	if strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".json"
}

func marshalArtifact(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact: %w", err)
	}
	return data, nil
}
