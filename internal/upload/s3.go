// Package upload stores highlight clips in S3.
package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Config selects the destination bucket.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	// Prefix is prepended to every object key.
	Prefix string `yaml:"prefix"`
	// Endpoint overrides the S3 endpoint, e.g. for a local MinIO.
	Endpoint string `yaml:"endpoint"`
}

// Validate reports missing settings when uploads are enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Bucket == "" {
		return fmt.Errorf("upload bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("upload region is required")
	}
	return nil
}

type uploaderAPI interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type bucketAPI interface {
	HeadBucketWithContext(ctx aws.Context, input *s3.HeadBucketInput, opts ...request.Option) (*s3.HeadBucketOutput, error)
	ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error
}

// Object is a stored file in the bucket.
type Object struct {
	Key          string
	SizeBytes    int64
	LastModified time.Time
}

// S3Uploader uploads files with server side encryption.
type S3Uploader struct {
	logger   zerolog.Logger
	config   Config
	uploader uploaderAPI
	bucket   bucketAPI
}

// NewS3Uploader creates a session from the default credential chain.
func NewS3Uploader(logger zerolog.Logger, cfg Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("upload bucket is required")
	}
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return newS3Uploader(logger, cfg, s3manager.NewUploader(sess), s3.New(sess)), nil
}

func newS3Uploader(logger zerolog.Logger, cfg Config, up uploaderAPI, bucket bucketAPI) *S3Uploader {
	return &S3Uploader{
		logger:   logger.With().Str("component", "s3").Str("bucket", cfg.Bucket).Logger(),
		config:   cfg,
		uploader: up,
		bucket:   bucket,
	}
}

// Verify checks that the bucket exists and the credentials can reach it.
func (u *S3Uploader) Verify(ctx context.Context) error {
	_, err := u.bucket.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.config.Bucket)})
	if err != nil {
		return fmt.Errorf("cannot access bucket %s: %w", u.config.Bucket, err)
	}
	u.logger.Info().Msg("AWS credentials verified")
	return nil
}

// Key returns the object key for a local file.
func (u *S3Uploader) Key(file string) string {
	return path.Join(u.config.Prefix, filepath.Base(file))
}

// URL returns the virtual hosted URL of key.
func (u *S3Uploader) URL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.config.Bucket, u.config.Region, key)
}

// Upload sends one file and returns its key.
func (u *S3Uploader) Upload(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	key := u.Key(file)
	u.logger.Info().Str("file", file).Str("key", key).Msg("uploading")

	_, err = u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:               aws.String(u.config.Bucket),
		Key:                  aws.String(key),
		Body:                 f,
		ContentType:          aws.String("video/mp4"),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", file, err)
	}

	u.logger.Info().Str("url", u.URL(key)).Msg("upload complete")
	return key, nil
}

// UploadAll uploads every file and returns the keys that made it. Failures
// are logged, skipped and returned together.
func (u *S3Uploader) UploadAll(ctx context.Context, files []string) ([]string, error) {
	var (
		keys []string
		errs error
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return keys, multierr.Append(errs, err)
		}
		key, err := u.Upload(ctx, file)
		if err != nil {
			u.logger.Error().Err(err).Str("file", filepath.Base(file)).Msg("upload failed")
			errs = multierr.Append(errs, err)
			continue
		}
		keys = append(keys, key)
	}
	u.logger.Info().
		Int("uploaded", len(keys)).
		Int("total", len(files)).
		Msg("uploads finished")
	return keys, errs
}

// List returns the objects under the configured prefix, following pagination.
func (u *S3Uploader) List(ctx context.Context) ([]Object, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(u.config.Bucket)}
	if u.config.Prefix != "" {
		input.Prefix = aws.String(strings.TrimSuffix(u.config.Prefix, "/") + "/")
	}

	var objects []Object
	err := u.bucket.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, o := range page.Contents {
			objects = append(objects, Object{
				Key:          aws.StringValue(o.Key),
				SizeBytes:    aws.Int64Value(o.Size),
				LastModified: aws.TimeValue(o.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket %s: %w", u.config.Bucket, err)
	}
	u.logger.Debug().Int("objects", len(objects)).Msg("listed bucket")
	return objects, nil
}
