package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/turnstile/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/turnstile/pkg/objectstore")

// MaxAvatarBytes bounds an uploaded profile image
const MaxAvatarBytes = 5 << 20

// ErrUnsupportedType is returned for images that are not png, jpeg, gif or webp
var ErrUnsupportedType = errors.New("unsupported image type")

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// s3API is the subset of *s3.Client used here
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// AvatarStore uploads profile images to an S3-compatible bucket
type AvatarStore struct {
	client s3API
	cfg    Config
	logger *observability.Logger
}

// NewAvatarStore connects to the configured bucket, creating it when missing
func NewAvatarStore(ctx context.Context, cfg Config, logger *observability.Logger) (*AvatarStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("object storage is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static keys for MinIO or explicit AWS credentials; otherwise the default chain
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	store := newAvatarStore(client, cfg, logger)
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func newAvatarStore(client s3API, cfg Config, logger *observability.Logger) *AvatarStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AvatarStore{
		client: client,
		cfg:    cfg,
		logger: logger.WithField("component", "objectstore"),
	}
}

// PutAvatar stores an image for userID and returns its public URL. Keys are
// content addressed so re-uploading the same image is idempotent.
func (s *AvatarStore) PutAvatar(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])
	key := path.Join(s.cfg.KeyPrefix, userID, checksum[:16]+ext)

	ctx, span := tracer.Start(ctx, "S3.PutAvatar",
		trace.WithAttributes(
			attribute.String("s3.bucket", s.cfg.Bucket),
			attribute.String("s3.key", key),
			attribute.String("content.type", contentType),
			attribute.Int("content.size", len(data)),
		),
	)
	defer span.End()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"checksum-sha256": checksum,
			"user-id":         userID,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	span.SetStatus(codes.Ok, "avatar uploaded")
	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"key":     key,
	}).Info("Avatar uploaded")
	return s.cfg.objectURL(key), nil
}

// Ping checks that the bucket is reachable
func (s *AvatarStore) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func (s *AvatarStore) ensureBucket(ctx context.Context) error {
	if err := s.Ping(ctx); err == nil {
		return nil
	}

	_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)})
	if err == nil {
		s.logger.WithField("bucket", s.cfg.Bucket).Info("Created avatar bucket")
		return nil
	}

	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return nil
	}
	return fmt.Errorf("failed to ensure bucket exists: %w", err)
}
