package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numDownloadRetries = 3

// S3DownloadParams ...
type S3DownloadParams struct {
	Bucket          string
	Key             string
	DownloadPath    string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// ErrArchiveNotFound ...
var ErrArchiveNotFound = errors.New("no archive found for the provided S3 key")

type s3DownloadService struct {
	client       *s3.Client
	bucket       string
	downloadPath string
}

// ParseS3URI splits an s3://bucket/key URI into bucket and key.
func ParseS3URI(rawURI string) (string, string, error) {
	parsed, err := url.Parse(rawURI)
	if err != nil {
		return "", "", fmt.Errorf("parse S3 URI: %w", err)
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("not an S3 URI: %s", rawURI)
	}
	bucket := parsed.Host
	key := strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("S3 URI must be in s3://bucket/key form: %s", rawURI)
	}
	return bucket, key, nil
}

// DownloadFromS3 fetches an archive object from the provided S3 bucket.
// If the object does not exist, the error is ErrArchiveNotFound.
func DownloadFromS3(ctx context.Context, params S3DownloadParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("bucket must not be empty")
	}
	if params.Key == "" {
		return fmt.Errorf("object key must not be empty")
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg)
	service := &s3DownloadService{
		client:       client,
		bucket:       params.Bucket,
		downloadPath: params.DownloadPath,
	}

	return service.downloadWithS3Client(ctx, params.Key, logger)
}

func (service *s3DownloadService) downloadWithS3Client(ctx context.Context, key string, logger log.Logger) error {
	if err := service.checkObjectExists(ctx, key); err != nil {
		return err
	}

	err := retry.Times(numDownloadRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		if attempt > 0 {
			logger.Debugf("Retrying S3 download (attempt %d)", attempt+1)
		}
		if err := service.getObject(ctx, key); err != nil {
			return fmt.Errorf("download object: %w", err), false
		}
		return nil, true
	})
	if err != nil {
		return fmt.Errorf("all retries failed: %w", err)
	}
	return nil
}

func (service *s3DownloadService) checkObjectExists(ctx context.Context, key string) error {
	_, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(service.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.NotFound:
				return ErrArchiveNotFound
			default:
				return fmt.Errorf("aws api error: %w", err)
			}
		}
		return fmt.Errorf("generic aws error: %w", err)
	}
	return nil
}

func (service *s3DownloadService) getObject(ctx context.Context, key string) error {
	result, err := service.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object: %w", err)
	}
	defer result.Body.Close() //nolint:errcheck

	file, err := os.Create(service.downloadPath)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer file.Close() //nolint:errcheck

	if _, err := io.Copy(file, result.Body); err != nil {
		return fmt.Errorf("write object content: %w", err)
	}
	return nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
