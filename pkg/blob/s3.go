// Package blob uploads raw content bytes to object storage and hands back
// public URLs that get stored in chunk metadata.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnavailable means the object store could not be reached.
var ErrUnavailable = errors.New("blob store unavailable")

type S3Config struct {
	Bucket    string
	Region    string
	KeyPrefix string
}

// S3Store writes blobs to a public S3 bucket.
type S3Store struct {
	config S3Config
	client *s3.Client
}

func NewS3WithConfig(ctx context.Context, config S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "images"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Store{
		config: config,
		client: s3.NewFromConfig(awsCfg),
	}, nil
}

// Put uploads the bytes under a fresh UUID key and returns the object URL.
// The original file name, when given, is kept in the key for traceability.
func (s *S3Store) Put(ctx context.Context, data []byte, contentType, name string) (string, error) {
	key := s.objectKey(name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.config.Bucket, key), nil
}

// Disabled rejects every upload. It stands in when no bucket is configured
// so text and PDF adds keep working without object storage.
type Disabled struct{}

func (Disabled) Put(ctx context.Context, data []byte, contentType, name string) (string, error) {
	return "", fmt.Errorf("%w: no bucket configured", ErrUnavailable)
}

func (s *S3Store) objectKey(name string) string {
	id := uuid.NewString()
	if name == "" {
		return path.Join(s.config.KeyPrefix, id+".jpg")
	}
	return path.Join(s.config.KeyPrefix, id+"_"+path.Base(name))
}
