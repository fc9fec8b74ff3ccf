package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/intranet-events/backend/internal/events"
)

// FolderEvents is the S3 prefix for event images.
const FolderEvents = "events"

// ImageExtensions maps accepted image MIME types to the stored file extension.
var ImageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL overrides the https://{bucket}.s3.{region}.amazonaws.com prefix (CDN, MinIO).
	PublicBaseURL string
	PublicRead    bool
}

// S3 uploads event images.
type S3 struct {
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the environment (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
	} else {
		logger.Warn("S3 client using default credential chain")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	return &S3{uploader: uploader, cfg: cfg, logger: logger}, nil
}

// EventImageKey returns the object key for an event image: events/{event_id}/{random}{ext}.
// The extension comes from the content type, falling back to the upload's filename.
func EventImageKey(eventID int64, contentType, filename string) string {
	ext, ok := ImageExtensions[strings.ToLower(contentType)]
	if !ok {
		ext = strings.ToLower(path.Ext(path.Base(filename)))
	}
	return path.Join(FolderEvents, strconv.FormatInt(eventID, 10), uuid.NewString()+ext)
}

// ObjectURL returns the URL under which a key is served.
func (s *S3) ObjectURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// UploadEventImage streams the image to the bucket and returns its URL.
func (s *S3) UploadEventImage(ctx context.Context, eventID int64, img *events.Upload) (string, error) {
	if img == nil || img.Body == nil {
		return "", fmt.Errorf("upload: empty image")
	}
	key := EventImageKey(eventID, img.ContentType, img.Filename)
	contentType := img.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        img.Body,
		ContentType: aws.String(contentType),
	}
	if img.Size > 0 {
		input.ContentLength = aws.Int64(img.Size)
	}
	if s.cfg.PublicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	s.logger.Debug("event image uploaded", zap.Int64("event_id", eventID), zap.String("key", key))
	return s.ObjectURL(key), nil
}
