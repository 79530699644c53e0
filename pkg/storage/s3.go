package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedmap/pkg/apperrors"
)

const s3Scheme = "s3://"

// s3API is the subset of the S3 client the store needs.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options locates the bucket. A non-empty Endpoint enables path-style
// addressing (MinIO and similar).
type S3Options struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// S3Store keeps artifacts under <prefix>/<run id>/ in one bucket.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	runID  string
	seq    atomic.Int64
	logger *zap.Logger
}

var _ Store = (*S3Store)(nil)

// NewS3Store loads AWS configuration from the environment and creates the store.
func NewS3Store(ctx context.Context, opts S3Options, runID string, logger *zap.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Store(s3.NewFromConfig(cfg, s3opts...), opts.Bucket, opts.Prefix, runID, logger), nil
}

func newS3Store(client s3API, bucket, prefix, runID string, logger *zap.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		runID:  runID,
		logger: logger.Named("storage"),
	}
}

func (s *S3Store) RunID() string { return s.runID }

func (s *S3Store) key(parts ...string) string {
	return path.Join(append([]string{s.prefix, s.runID}, parts...)...)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) (string, error) {
	contentType := "application/json"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	location := s3Scheme + s.bucket + "/" + key
	s.logger.Debug("Saved object", zap.String("location", location), zap.Int("bytes", len(data)))
	return location, nil
}

func (s *S3Store) SaveRaw(ctx context.Context, label string, payload []byte) (string, error) {
	return s.put(ctx, s.key("raw", rawName(s.seq.Add(1), label)), payload)
}

func (s *S3Store) SaveJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := marshalArtifact(v)
	if err != nil {
		return "", err
	}
	return s.put(ctx, s.key(jsonName(name)), data)
}

func (s *S3Store) LoadRaw(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", location, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read object: %w", err)
	}
	return data, nil
}

// parseS3Location splits "s3://bucket/key".
func parseS3Location(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(location, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed s3 location: %q", location)
	}
	return bucket, key, nil
}
