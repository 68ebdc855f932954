package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"taskhub/backend/internal/config"
	"taskhub/backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofrs/uuid"
)

// S3API is the part of the S3 client the cloud backend uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// CloudBackend stores objects as task-file-<millis><ext> in a bucket and
// returns absolute URLs.
type CloudBackend struct {
	client     S3API
	bucket     string
	baseURL    string
	publicRead bool
	now        func() time.Time
	log        *slog.Logger
}

func NewCloudBackend(client S3API, cfg config.StorageConfig, log *slog.Logger) *CloudBackend {
	baseURL := strings.TrimRight(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return &CloudBackend{
		client:     client,
		bucket:     cfg.Bucket,
		baseURL:    baseURL,
		publicRead: cfg.PublicRead,
		now:        time.Now,
		log:        log,
	}
}

func (b *CloudBackend) Name() string { return "s3" }

func (b *CloudBackend) Store(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*models.Attachment, error) {
	body, mimeType, err := detectContentType(r, contentType)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("generate object key: %w", err)
	}
	key := fmt.Sprintf("task-file-%d-%s%s", b.now().UnixMilli(), id, extension(filename))
	input := &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(mimeType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if b.publicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	b.log.Debug("stored upload", "bucket", b.bucket, "key", key)
	return &models.Attachment{
		URL:              b.baseURL + "/" + key,
		OriginalFilename: originalName(filename),
		MimeType:         mimeType,
	}, nil
}

func (b *CloudBackend) Release(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, b.baseURL+"/")
	if !ok || key == "" || strings.Contains(key, "/") {
		return nil
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}
