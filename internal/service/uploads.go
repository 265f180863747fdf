package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var uploadTracer = otel.Tracer("service/uploads")

// MaxUploadBytes caps logo and avatar uploads.
const MaxUploadBytes = 5 << 20

var uploadBuckets = map[string]bool{"logos": true, "avatars": true}

// imageTypes are keyed by the sniffed type. SVG is absent: it is served
// inline from a public bucket and can carry script.
var imageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadService stores logo and avatar images.
type UploadService struct {
	storage port.FileStorage
	logger  *zap.Logger
}

// NewUploadService creates an upload service.
func NewUploadService(storage port.FileStorage, logger *zap.Logger) *UploadService {
	return &UploadService{storage: storage, logger: logger}
}

// Upload stores an image under a fresh name and returns its public URL.
// The type is sniffed from the bytes; whatever the client declared is
// ignored. The original filename is only logged.
func (s *UploadService) Upload(ctx context.Context, sess *domain.Session, bucket, filename string, data []byte) (string, error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.Upload")
	defer span.End()

	if !uploadBuckets[bucket] {
		return "", &domain.ErrNotFound{Resource: "bucket", ID: bucket}
	}
	if len(data) == 0 {
		return "", &domain.ErrValidation{Field: "file", Message: "arquivo vazio"}
	}
	contentType := http.DetectContentType(data)
	ext, ok := imageTypes[contentType]
	if !ok {
		s.logger.Warn("upload rejected",
			zap.String("bucket", bucket),
			zap.String("detected_type", contentType),
			zap.String("original_name", filename),
		)
		return "", &domain.ErrValidation{Field: "file", Message: "formato de imagem não suportado"}
	}
	if len(data) > MaxUploadBytes {
		return "", &domain.ErrValidation{Field: "file", Message: "arquivo maior que 5MB"}
	}

	name := fmt.Sprintf("%s/%s%s", sess.UserID, uuid.NewString(), ext)

	url, err := s.storage.Upload(ctx, bucket, name, contentType, data)
	if err != nil {
		s.logger.Error("upload failed",
			zap.String("bucket", bucket),
			zap.String("name", name),
			zap.String("original_name", filename),
			zap.Error(err),
		)
		return "", err
	}
	return url, nil
}
