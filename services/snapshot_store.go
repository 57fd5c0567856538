package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/sourcemarket/sourcemarket-api/config"
	"github.com/sourcemarket/sourcemarket-api/logger"
)

// SnapshotURLExpiry is how long a presigned product snapshot link stays valid
const SnapshotURLExpiry = time.Hour

// SnapshotStore resolves the preview image of a purchased product to a
// link the buyer's browser can load
type SnapshotStore interface {
	GetPresignedURL(ctx context.Context, key string) (string, error)
}

// S3SnapshotStore keeps product snapshots in a private S3 bucket
type S3SnapshotStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

var snapshotStoreInstance SnapshotStore

// InitSnapshotStore initializes the S3 snapshot store with AWS credentials
func InitSnapshotStore(ctx context.Context) (SnapshotStore, error) {
	cfg := appConfig.GetConfig()

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.AWSRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = false
	})

	snapshotStoreInstance = &S3SnapshotStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.AWSS3Bucket,
	}
	return snapshotStoreInstance, nil
}

// GetSnapshotStore returns the initialized snapshot store
func GetSnapshotStore() SnapshotStore {
	return snapshotStoreInstance
}

// SetSnapshotStore sets the snapshot store instance (primarily for testing)
func SetSnapshotStore(store SnapshotStore) {
	snapshotStoreInstance = store
}

// GetPresignedURL generates a time-limited GET link for a private object
func (s *S3SnapshotStore) GetPresignedURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	request, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = SnapshotURLExpiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	logger.Debug("generated presigned snapshot URL", "key", key)
	return request.URL, nil
}
