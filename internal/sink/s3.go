// Package sink implements the storage sink capability against an
// S3-compatible object store.
package sink

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pixelrelay/pixelrelay/internal/logger"
	"github.com/pixelrelay/pixelrelay/internal/pipeline"
)

// Config holds S3-compatible endpoint settings. An unconfigured Config
// (missing endpoint or credentials) means the sink capability is absent and
// upload endpoints are not registered.
type Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

// Configured reports whether the settings are complete enough to build a sink.
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// S3 streams conversion outputs into a bucket and returns public descriptors.
type S3 struct {
	cl         *minio.Client
	bucket     string
	publicBase string
	logger     *slog.Logger
}

// New creates an S3 sink from config.
func New(log *slog.Logger, cfg Config) (*S3, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("sink: client: %w", err)
	}
	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = strings.TrimRight(cl.EndpointURL().String(), "/") + "/" + cfg.Bucket
	}
	return &S3{
		cl:         cl,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
		logger:     logger.Component(log, "sink"),
	}, nil
}

// Store streams input into the bucket under a fresh object key. The object
// size is unknown up front, so the client uses multipart streaming upload;
// a slow uplink therefore backpressures the input reader rather than
// buffering the whole output.
func (s *S3) Store(ctx context.Context, input io.Reader, opts pipeline.SinkOptions) (pipeline.Descriptor, error) {
	id := uuid.NewString()
	key := path.Join("converted", id+"."+string(opts.Format))

	info, err := s.cl.PutObject(ctx, s.bucket, key, input, -1, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		return pipeline.Descriptor{}, fmt.Errorf("sink: put %s: %w", key, err)
	}

	s.logger.Info("stored conversion output",
		slog.String("key", key),
		slog.Int64("bytes", info.Size),
		slog.String("content_type", opts.ContentType),
	)
	return pipeline.Descriptor{
		URL:    s.publicBase + "/" + key,
		Bytes:  info.Size,
		Format: opts.Format,
		ID:     id,
	}, nil
}
