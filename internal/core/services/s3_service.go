package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/theblitlabs/fedsim/internal/core/config"
	"github.com/theblitlabs/fedsim/internal/core/models"
	"github.com/theblitlabs/fedsim/internal/core/ports"
	"github.com/theblitlabs/fedsim/pkg/logger"
)

// ArtifactPrefix is the key prefix under which simulation outputs are stored.
const ArtifactPrefix = "simulations"

type S3Service struct {
	client     *s3.Client
	bucketName string
}

func NewS3Service(cfg *config.Config) (*S3Service, error) {
	if cfg.AWS.AccessKeyID == "" || cfg.AWS.SecretAccessKey == "" {
		return nil, fmt.Errorf("missing required AWS credentials")
	}

	if cfg.AWS.Region == "" {
		return nil, fmt.Errorf("AWS region must be specified")
	}

	if cfg.AWS.BucketName == "" {
		return nil, fmt.Errorf("AWS bucket name must be specified")
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AWS.AccessKeyID,
		cfg.AWS.SecretAccessKey,
		"",
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	endpoint := cfg.AWS.Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Service{
		client:     client,
		bucketName: cfg.AWS.BucketName,
	}, nil
}

// Upload stores body under key and returns a pre-signed URL valid for a day.
func (s *S3Service) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	log := logger.WithComponent("s3_service")

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		log.Error().Err(err).
			Str("bucket", s.bucketName).
			Str("key", key).
			Msg("Failed to upload artifact to S3")
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	presignClient := s3.NewPresignClient(s.client)
	presignedURL, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(24*time.Hour))
	if err != nil {
		log.Error().Err(err).
			Str("bucket", s.bucketName).
			Str("key", key).
			Msg("Failed to generate pre-signed URL")
		return "", fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	log.Info().
		Str("bucket", s.bucketName).
		Str("key", key).
		Msg("Uploaded artifact to S3")

	return presignedURL.URL, nil
}

func (s *S3Service) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

// S3Sink uploads the same two CSV files the CSVSink writes.
type S3Sink struct {
	store  ports.ArtifactStore
	prefix string
}

func NewS3Sink(store ports.ArtifactStore) *S3Sink {
	return &S3Sink{store: store, prefix: ArtifactPrefix}
}

func (s *S3Sink) Name() string {
	return "s3"
}

func (s *S3Sink) Write(ctx context.Context, result *models.SimulationResult) error {
	stem := result.Params.ExportStem()

	var rounds, test bytes.Buffer
	if err := WriteRoundsCSV(&rounds, result.Rounds); err != nil {
		return fmt.Errorf("failed to render round series: %w", err)
	}
	if err := WriteTestCSV(&test, result.Test); err != nil {
		return fmt.Errorf("failed to render test record: %w", err)
	}

	uploads := []struct {
		key  string
		body *bytes.Buffer
	}{
		{path.Join(s.prefix, stem+".csv"), &rounds},
		{path.Join(s.prefix, stem+"-test.csv"), &test},
	}
	for _, u := range uploads {
		if _, err := s.store.Upload(ctx, u.key, u.body, "text/csv"); err != nil {
			return fmt.Errorf("failed to upload %s: %w", u.key, err)
		}
	}
	return nil
}
