package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// FileStorage is the object storage used to publish version documents.
type FileStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, objectKey string) (io.ReadCloser, error)
}

// MinioClient implements FileStorage on MinIO (or any S3-compatible store).
type MinioClient struct {
	client     *minio.Client
	bucketName string
	log        *slog.Logger
}

// MinioConfig holds the MinIO connection parameters.
type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

// NewMinioClient connects to MinIO and creates the bucket when it does not exist.
func NewMinioClient(ctx context.Context, cfg MinioConfig) (*MinioClient, error) {
	log := slog.Default().With("component", "Minio", "bucket", cfg.BucketName)
	log.Info("initializing MinIO client", "endpoint", cfg.Endpoint)

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init MinIO client: %w", err)
	}

	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.BucketName, err)
	}
	if !exists {
		log.Info("bucket not found, creating")
		if err = minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.BucketName, err)
		}
	}

	log.Info("MinIO client ready")
	return &MinioClient{
		client:     minioClient,
		bucketName: cfg.BucketName,
		log:        log,
	}, nil
}

// UploadFile writes an object, replacing any previous object with the same key.
func (c *MinioClient) UploadFile(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	info, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		c.log.ErrorContext(ctx, "upload failed", "object_key", objectKey, "error", err)
		return fmt.Errorf("upload %q to MinIO: %w", objectKey, err)
	}

	c.log.InfoContext(ctx, "object uploaded", "object_key", objectKey, "size", info.Size, "etag", info.ETag)
	return nil
}

// DownloadFile opens an object for reading. The caller closes the returned reader.
func (c *MinioClient) DownloadFile(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.downloadError(ctx, objectKey, err)
	}

	// GetObject is lazy; Stat surfaces a missing key before the caller starts streaming.
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		return nil, c.downloadError(ctx, objectKey, err)
	}

	return object, nil
}

func (c *MinioClient) downloadError(ctx context.Context, objectKey string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		c.log.DebugContext(ctx, "object not found", "object_key", objectKey)
		return ErrObjectNotFound
	}
	c.log.ErrorContext(ctx, "download failed", "object_key", objectKey, "error", err)
	return fmt.Errorf("download %q from MinIO: %w", objectKey, err)
}

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found in storage")
