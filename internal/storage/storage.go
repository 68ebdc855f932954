// Package storage keeps uploaded task files either on local disk or in an S3
// bucket. The backend is chosen once at startup; callers only see URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"taskhub/backend/internal/config"
	"taskhub/backend/internal/models"
)

var ErrEmptyFile = errors.New("uploaded file is empty")

type Backend interface {
	Store(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*models.Attachment, error)
	// Release deletes the object behind url. URLs this backend did not
	// produce are ignored.
	Release(ctx context.Context, url string) error
	Name() string
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (Backend, error) {
	switch cfg.StorageBackend() {
	case config.StorageLocal:
		return NewLocalBackend(cfg.Storage.UploadDir, cfg.Storage.PublicPath, log)
	case config.StorageS3:
		client, err := NewS3Client(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		return NewCloudBackend(client, cfg.Storage, log), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend())
	}
}

// originalName strips any client supplied directories.
func originalName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(originalName(filename)))
}
