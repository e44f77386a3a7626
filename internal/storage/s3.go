package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements ObjectStorage for AWS S3 and S3-compatible stores.
type S3Storage struct {
	client     *s3.Client
	bucket     string
	prefix     string
	maxRetries int
	baseDelay  time.Duration
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	// Prefix is prepended to every key, e.g. "vitalog/".
	Prefix string `json:"prefix" yaml:"prefix"`
	Region string `json:"region" yaml:"region"`
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
	MaxRetries   int  `json:"max_retries" yaml:"max_retries"`
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:     "us-east-1",
		MaxRetries: 3,
	}
}

// NewS3Storage creates an S3 client from the default AWS credential chain.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StorageWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewS3StorageWithClient creates S3 storage with a pre-configured client.
func NewS3StorageWithClient(client *s3.Client, cfg S3Config) *S3Storage {
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &S3Storage{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		maxRetries: retries,
		baseDelay:  100 * time.Millisecond,
	}
}

func (s *S3Storage) objectKey(key string) string {
	return s.prefix + key
}

// Put implements ObjectStorage.
func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	var etag string
	err := retryWithBackoff(ctx, s.maxRetries, s.baseDelay, func() error {
		resp, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.objectKey(key)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
		if err != nil {
			return err
		}
		etag = aws.ToString(resp.ETag)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return etag, nil
}

// Get implements ObjectStorage.
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var data []byte
	err := retryWithBackoff(ctx, s.maxRetries, s.baseDelay, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(key)),
		})
		if err != nil {
			if isNotFound(err) {
				return ErrObjectNotFound
			}
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if errors.Is(err, ErrObjectNotFound) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

// List implements ObjectStorage. Returned keys have the storage prefix removed.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key)[len(s.prefix):])
		}
	}
	return keys, nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// retryWithBackoff runs operation up to maxRetries+1 times, doubling the
// delay from base after each failure. ErrObjectNotFound is not retried.
func retryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
