package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"taskhub/backend/internal/models"
)

// LocalBackend writes files under dir and serves them from publicPath.
type LocalBackend struct {
	dir        string
	publicPath string
	now        func() time.Time
	log        *slog.Logger
}

func NewLocalBackend(dir, publicPath string, log *slog.Logger) (*LocalBackend, error) {
	if dir == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if publicPath == "" {
		publicPath = "/uploads"
	}
	return &LocalBackend{
		dir:        dir,
		publicPath: "/" + strings.Trim(publicPath, "/"),
		now:        time.Now,
		log:        log,
	}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Dir() string { return b.dir }

func (b *LocalBackend) Store(ctx context.Context, r io.Reader, filename, contentType string, size int64) (*models.Attachment, error) {
	body, mimeType, err := detectContentType(r, contentType)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%d-%d%s", b.now().UnixMilli(), rand.Int63n(1e9), extension(filename))
	target := filepath.Join(b.dir, name)

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}

	written, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written == 0 {
		err = ErrEmptyFile
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("write %s: %w", name, err)
	}

	b.log.Debug("stored upload", "file", name, "bytes", written)
	return &models.Attachment{
		URL:              b.publicPath + "/" + name,
		OriginalFilename: originalName(filename),
		MimeType:         mimeType,
	}, nil
}

func (b *LocalBackend) Release(ctx context.Context, url string) error {
	prefix := b.publicPath + "/"
	if !strings.HasPrefix(url, prefix) {
		return nil
	}

	name := strings.TrimPrefix(url, prefix)
	if name == "" || name != path.Base(name) || name == ".." || name == "." {
		return nil
	}

	err := os.Remove(filepath.Join(b.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
