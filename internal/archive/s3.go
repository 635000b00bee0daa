package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"go_sitegen/internal/vfs"
)

// Uploader is the part of the S3 upload manager the store uses
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config holds the object storage settings
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // S3-compatible endpoint; path-style addressing when set
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store keeps version archives in a bucket
type S3Store struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3Store builds a store from the default AWS credential chain,
// or from static keys when both are configured
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithUploader(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithUploader creates a store over an existing uploader
func NewS3StoreWithUploader(u Uploader, bucket, prefix string) *S3Store {
	return &S3Store{uploader: u, bucket: bucket, prefix: prefix}
}

// Key is the object key of a version archive
func (s *S3Store) Key(projectSlug string, versionNumber int) string {
	return path.Join(s.prefix, projectSlug, fmt.Sprintf("v%d.zip", versionNumber))
}

// Put uploads body under key
func (s *S3Store) Put(ctx context.Context, key string, body []byte) (string, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return out.Location, nil
}

// PutTree zips the tree and uploads it as the archive of a version
func (s *S3Store) PutTree(ctx context.Context, projectSlug string, versionNumber int, tree *vfs.Tree) (string, error) {
	body, err := ZipBytes(tree)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, s.Key(projectSlug, versionNumber), body)
}
