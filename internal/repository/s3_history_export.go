package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/mansoorceksport/ironlog/internal/config"
	"github.com/mansoorceksport/ironlog/internal/domain"
)

// S3HistoryExportRepository stores workout history exports in an
// S3-compatible bucket (SeaweedFS, MinIO, AWS). Exports are JSON arrays of
// workouts and can be replayed with a JSONHistoryCursor.
type S3HistoryExportRepository struct {
	client *s3.Client
	bucket string
}

// NewS3HistoryExportRepository creates a new S3 export repository
func NewS3HistoryExportRepository(ctx context.Context, cfg appConfig.S3Config) (*S3HistoryExportRepository, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %v", err)
	}

	// Override the endpoint for S3-compatible stores
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	repo := &S3HistoryExportRepository{
		client: client,
		bucket: cfg.Bucket,
	}

	if err := repo.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return repo, nil
}

// ExportKey is the object key of a user's export taken at t
func ExportKey(userID string, t time.Time) string {
	return fmt.Sprintf("history/%s/%s.json", userID, t.UTC().Format("20060102T150405Z"))
}

// Upload writes an export and returns its key
func (r *S3HistoryExportRepository) Upload(ctx context.Context, key string, workouts []*domain.HistoryWorkout) error {
	data, err := json.Marshal(workouts)
	if err != nil {
		return fmt.Errorf("failed to marshal history export: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload history export to S3: %w", err)
	}
	return nil
}

// Open downloads an export and returns a cursor over it
func (r *S3HistoryExportRepository) Open(ctx context.Context, key string) (domain.HistoryCursor, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download %s: %w", domain.ErrHistoryUnreadable, key, err)
	}
	defer out.Body.Close()

	return NewJSONHistoryCursor(out.Body), nil
}

// ensureBucket checks if bucket exists, creating it if necessary
func (r *S3HistoryExportRepository) ensureBucket(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.bucket),
	})

	if err != nil {
		_, err = r.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(r.bucket),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", r.bucket, err)
		}
	}
	return nil
}
