// Package objectstore stores uploaded assets in an S3-compatible bucket
// (Supabase Storage S3 endpoint, MinIO, AWS S3).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("objectstore")

// Config holds the S3 connection settings.
type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	PublicBaseURL string // prefix for public URLs; defaults to the endpoint
}

// Store implements port.FileStorage on top of minio-go.
type Store struct {
	client     *minio.Client
	publicBase string
	logger     *zap.Logger
}

// New connects to the S3 endpoint. No network call is made until the
// first upload.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, &domain.ErrNotConfigured{Setting: "S3_ENDPOINT"}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &Store{client: client, publicBase: strings.TrimRight(base, "/"), logger: logger}, nil
}

// Upload puts data at bucket/filename and returns its public URL.
func (s *Store) Upload(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "ObjectStore.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.Int("size", len(data)),
	)

	_, err := s.client.PutObject(ctx, bucket, filename, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("objectstore: upload failed",
			zap.String("bucket", bucket),
			zap.String("filename", filename),
			zap.Error(err),
		)
		return "", &domain.ErrExternalService{Service: "objectstore", Err: err}
	}

	return PublicURL(s.publicBase, bucket, filename), nil
}

// PublicURL joins base, bucket and object name with path escaping.
func PublicURL(base, bucket, filename string) string {
	u := url.URL{Path: "/" + bucket + "/" + strings.TrimLeft(filename, "/")}
	return strings.TrimRight(base, "/") + u.EscapedPath()
}
