package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/iconidentify/gifstash/internal/config"
	"github.com/iconidentify/gifstash/internal/domain"
)

// S3Store uploads media to an S3-compatible bucket.
type S3Store struct {
	client        *s3.Client
	uploader      *manager.Uploader
	bucket        string
	region        string
	publicBaseURL string
	logger        *slog.Logger
}

// NewS3Store builds a store from AWS default credentials. A non-empty
// endpoint switches to path-style addressing for MinIO and R2.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:        client,
		uploader:      manager.NewUploader(client),
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// Put stores data under key. The conditional write turns a key
// collision into domain.ErrObjectExists instead of overwriting.
func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte, cacheControl string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
		IfNoneMatch:  aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return domain.ErrObjectExists
		}
		return fmt.Errorf("put object %s: %w", key, err)
	}

	s.logger.Info("object stored",
		"bucket", s.bucket,
		"key", key,
		"size_bytes", len(data),
		"content_type", contentType,
	)
	return nil
}

// PublicURL returns the playback URL for key.
func (s *S3Store) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// Remove deletes the given keys. Object stores treat deleting a missing
// key as success, so Remove is safe to call on already-gone media.
func (s *S3Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}

	s.logger.Info("objects removed", "bucket", s.bucket, "count", len(keys))
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}
