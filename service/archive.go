package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Turbo-Partners/UGCHUB-sub009/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveService keeps a copy of every contract PDF in object storage before
// it is handed to the signing provider, so the marketplace retains the
// original even if the provider-side document is cancelled or expires.
type ArchiveService struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewArchiveService(cfg *config.MinioConfig) (*ArchiveService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ArchiveService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the archive bucket if it doesn't exist
func (s *ArchiveService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ArchivePDF stores one contract PDF under the given object name.
func (s *ArchiveService) ArchivePDF(ctx context.Context, objectName string, document []byte) error {
	reader := bytes.NewReader(document)
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, int64(len(document)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return fmt.Errorf("failed to archive document: %w", err)
	}

	return nil
}

// PresignedURL generates a time-limited download URL for an archived object.
func (s *ArchiveService) PresignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return u.String(), nil
}

// Remove deletes an archived object.
func (s *ArchiveService) Remove(ctx context.Context, objectName string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove archived document: %w", err)
	}

	return nil
}

// ObjectName builds the canonical archive key for an envelope's PDF.
func (s *ArchiveService) ObjectName(tenant, envelopeID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", tenant, envelopeID, filename)
}
