package network

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pdfcraft/go-pdfcraft/errs"
)

const (
	numS3Retries         = 3
	defaultPresignExpiry = time.Hour
)

// S3Params ...
type S3Params struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// PresignExpiry bounds the lifetime of presigned source URLs, 1h when zero.
	PresignExpiry time.Duration
}

var errS3KeyNotFound = errors.New("key not found in s3 bucket")

// ParseS3URL splits an s3://bucket/key location.
func ParseS3URL(raw string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("bucket must not be empty: %s", raw)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// PresignS3Source turns an s3://bucket/key object into a time limited HTTPS
// URL the conversion service can fetch.
func PresignS3Source(ctx context.Context, rawURL string, params S3Params, logger log.Logger) (string, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("key must not be empty: %s", rawURL)
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return "", fmt.Errorf("load aws credentials: %w", err)
	}
	client := s3.NewFromConfig(*cfg)

	err = retry.Times(numS3Retries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		err := headObject(ctx, client, bucket, key)
		if errors.Is(err, errS3KeyNotFound) {
			return &errs.InputError{Path: rawURL, Err: err}, true
		}
		if err != nil {
			logger.Debugf("head object %s (attempt %d): %s", rawURL, attempt, err)
			return err, false
		}
		return nil, true
	})
	if err != nil {
		return "", err
	}

	expiry := params.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return presignGetObject(ctx, client, bucket, key, expiry)
}

// ExportToS3 uploads a local file to s3://bucket/key. A location ending in a
// slash is treated as a prefix and the file name is appended to it.
// Returns the s3 location of the uploaded object.
func ExportToS3(ctx context.Context, filePath, rawURL string, params S3Params, logger log.Logger) (string, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return "", err
	}
	key = exportKey(key, filePath)

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return "", fmt.Errorf("load aws credentials: %w", err)
	}
	client := s3.NewFromConfig(*cfg)

	contentType := "application/octet-stream"
	if mime, err := mimetype.DetectFile(filePath); err == nil {
		contentType = mime.String()
	}

	err = retry.Times(numS3Retries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Open(filePath)
		if err != nil {
			return &errs.InputError{Path: filePath, Err: err}, true
		}
		defer file.Close() //nolint:errcheck
		var partMB int64 = 10

		uploader := manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partMB * 1024 * 1024
		})

		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Body:        file,
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("upload result: %w", err), false
		}

		return nil, true
	})
	if err != nil {
		return "", err
	}

	location := fmt.Sprintf("s3://%s/%s", bucket, key)
	logger.Debugf("Exported %s to %s", filePath, location)
	return location, nil
}

func exportKey(key, filePath string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key + filepath.Base(filePath)
	}
	return key
}

func headObject(ctx context.Context, client *s3.Client, bucket, key string) error {
	_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) {
			switch apiError.(type) {
			case *types.NotFound:
				return errS3KeyNotFound
			default:
				return fmt.Errorf("aws api error: %w", err)
			}
		}
		return fmt.Errorf("generic aws error: %w", err)
	}
	return nil
}

func presignGetObject(ctx context.Context, client *s3.Client, bucket, key string, expiry time.Duration) (string, error) {
	presigner := s3.NewPresignClient(client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
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
