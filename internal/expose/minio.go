package expose

import (
	"bytes"
	"context"
	"fmt"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/framesift/internal/config"
	"github.com/kikiluvv/framesift/internal/metrics"
)

// MinIOSink uploads key frames to an S3-compatible bucket
type MinIOSink struct {
	logger zerolog.Logger
	client *miniogo.Client
	bucket string
}

// NewMinIOSink connects to the endpoint and makes sure the bucket exists
func NewMinIOSink(ctx context.Context, logger zerolog.Logger, cfg config.MinIOConfig) (*MinIOSink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinIOSink{
		logger: logger.With().Str("component", "expose").Str("sink", "minio").Logger(),
		client: client,
		bucket: cfg.Bucket,
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinIOSink) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
		s.logger.Info().Str("bucket", s.bucket).Msg("bucket created")
	}
	return nil
}

func (s *MinIOSink) Expose(ctx context.Context, name string, jpeg []byte) (string, error) {
	key := ObjectName(name)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(jpeg), int64(len(jpeg)), miniogo.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("upload key frame: %w", err)
	}

	location := fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucket, key)
	s.logger.Info().Str("object", location).Int("bytes", len(jpeg)).Msg("key frame exposed")
	return location, nil
}

// Sweep removes objects last modified before the retention window
func (s *MinIOSink) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	removed := 0

	for obj := range s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("list objects: %w", obj.Err)
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, miniogo.RemoveObjectOptions{}); err != nil {
			s.logger.Warn().Err(err).Str("key", obj.Key).Msg("failed to remove expired frame")
			continue
		}
		removed++
	}

	metrics.ExposedFramesSweptTotal.WithLabelValues("minio").Add(float64(removed))
	return removed, nil
}
