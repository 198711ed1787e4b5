package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"messaging_backend/internal/config"
)

var ErrObjectNotFound = errors.New("stored object not found")

// Storage is the port the attachment store writes file contents through.
type Storage interface {
	Save(ctx context.Context, key string, reader io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetURL(ctx context.Context, key string) (string, error)
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	GetSize(ctx context.Context, key string) (int64, error)
}

type Config struct {
	Type       string // local, s3, cloudflare_r2
	BasePath   string // local root directory
	BaseURL    string // public URL prefix
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string // R2 or any S3-compatible endpoint
	UseSSL     bool
	PublicRead bool
}

// ConfigFrom maps the application config section onto a storage Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Type:       cfg.Storage.Type,
		BasePath:   cfg.Storage.BasePath,
		BaseURL:    cfg.Storage.BaseURL,
		Bucket:     cfg.Storage.Bucket,
		Region:     cfg.Storage.Region,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Endpoint:   cfg.Storage.Endpoint,
		UseSSL:     cfg.Storage.UseSSL,
		PublicRead: cfg.Storage.PublicRead,
	}
}

func NewStorage(cfg Config) (Storage, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStorage(cfg)
	case "s3", "cloudflare_r2":
		return NewObjectStorage(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// AttachmentKey is the object key of an attachment file:
// attachments/<message>/<attachment>/<filename>.
func AttachmentKey(messageID, attachmentID, filename string) string {
	return path.Join("attachments", messageID, attachmentID, sanitizeFilename(filename))
}

// ThumbnailKey places the thumbnail next to the original.
func ThumbnailKey(messageID, attachmentID string) string {
	return path.Join("attachments", messageID, attachmentID, "thumb.jpg")
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == '/', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
