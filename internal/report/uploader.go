package report

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/config"
)

// ErrNotConfigured is returned when report storage is not configured.
var ErrNotConfigured = errors.New("report storage not configured")

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Uploader stores exported workbooks and hands out download links.
type Uploader interface {
	// Upload stores the workbook at filePath under key.
	Upload(ctx context.Context, key, filePath string) error

	// PresignedURL returns a time-limited download URL for key.
	// Returns ErrNotConfigured when storage is not configured.
	PresignedURL(ctx context.Context, key string) (url string, expiry time.Time, err error)
}

// s3Client is the subset of *minio.Client the uploader needs.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error {
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Uploader uploads workbooks to S3-compatible storage.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
	now       func() time.Time
}

// Upload puts the file at filePath into the bucket under key.
func (u *S3Uploader) Upload(ctx context.Context, key, filePath string) error {
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath, xlsxContentType); err != nil {
		return fmt.Errorf("upload report to S3: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for key.
func (u *S3Uploader) PresignedURL(ctx context.Context, key string) (string, time.Time, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, key, u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), u.now().Add(u.urlExpiry), nil
}

// NoopUploader keeps reports on local disk only.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, string) error { return nil }

func (NoopUploader) PresignedURL(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader returns a NoopUploader when no bucket is configured and an
// S3Uploader otherwise.
func NewUploader(cfg config.ReportConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiry),
		now:       time.Now,
	}, nil
}

// ObjectKey is the storage key of an owner's workbook for a period.
// Convention: {owner}/reports/{year}-{month}.xlsx
func ObjectKey(owner, month string, year int) string {
	return owner + "/reports/" + strconv.Itoa(year) + "-" + month + ".xlsx"
}
