package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/service"

	"go.uber.org/zap"
)

type mockStorage struct {
	bucket, name, contentType string
	size                      int
}

func (m *mockStorage) Upload(_ context.Context, bucket, name, contentType string, data []byte) (string, error) {
	m.bucket, m.name, m.contentType, m.size = bucket, name, contentType, len(data)
	return "https://cdn.example/" + bucket + "/" + name, nil
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

func TestUpload_StoresUnderUserWithTypeExtension(t *testing.T) {
	storage := &mockStorage{}
	svc := service.NewUploadService(storage, zap.NewNop())

	url, err := svc.Upload(context.Background(), editor(), "logos", "../../etc/passwd.exe", pngBytes)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(storage.name, "user-1/") || !strings.HasSuffix(storage.name, ".png") {
		t.Errorf("unexpected object name %q", storage.name)
	}
	if strings.Contains(storage.name, "passwd") {
		t.Error("client filename must not reach the object name")
	}
	if storage.contentType != "image/png" {
		t.Errorf("stored content type = %q", storage.contentType)
	}
	if !strings.HasSuffix(url, storage.name) {
		t.Errorf("unexpected url %q", url)
	}
}

func TestUpload_Rejections(t *testing.T) {
	storage := &mockStorage{}
	svc := service.NewUploadService(storage, zap.NewNop())
	ctx := context.Background()

	var nf *domain.ErrNotFound
	if _, err := svc.Upload(ctx, editor(), "private", "a.png", pngBytes); !errors.As(err, &nf) {
		t.Errorf("expected unknown bucket rejected, got %v", err)
	}

	var ve *domain.ErrValidation
	if _, err := svc.Upload(ctx, editor(), "avatars", "a.pdf", []byte("%PDF-1.4 brief")); !errors.As(err, &ve) {
		t.Errorf("expected non-image rejected, got %v", err)
	}
	if _, err := svc.Upload(ctx, editor(), "avatars", "a.png", nil); !errors.As(err, &ve) {
		t.Errorf("expected empty file rejected, got %v", err)
	}
	big := append(append([]byte(nil), pngBytes...), bytes.Repeat([]byte{0}, service.MaxUploadBytes)...)
	if _, err := svc.Upload(ctx, editor(), "avatars", "a.png", big); !errors.As(err, &ve) {
		t.Errorf("expected oversized file rejected, got %v", err)
	}
	if storage.size != 0 {
		t.Error("rejected uploads must not reach storage")
	}
}

func TestUpload_SniffsInsteadOfTrustingName(t *testing.T) {
	storage := &mockStorage{}
	svc := service.NewUploadService(storage, zap.NewNop())
	ctx := context.Background()

	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`)
	var ve *domain.ErrValidation
	if _, err := svc.Upload(ctx, editor(), "logos", "logo.svg", svg); !errors.As(err, &ve) {
		t.Errorf("expected svg rejected, got %v", err)
	}
	html := []byte("<html><script>alert(1)</script></html>")
	if _, err := svc.Upload(ctx, editor(), "logos", "logo.png", html); !errors.As(err, &ve) {
		t.Errorf("expected html named .png rejected, got %v", err)
	}
	if storage.size != 0 {
		t.Error("rejected uploads must not reach storage")
	}

	gif := []byte("GIF89a\x01\x00\x01\x00")
	url, err := svc.Upload(ctx, editor(), "avatars", "photo.png", gif)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(url, ".gif") || storage.contentType != "image/gif" {
		t.Errorf("extension must follow the sniffed type, got %q (%s)", url, storage.contentType)
	}
}
