// Package storage moves traces and analysis reports between the analyzer's
// working directory and an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/memdump-analysis/pkg/config"
)

var (
	// ErrObjectNotFound is returned when a key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for empty keys and keys escaping the store root.
	ErrInvalidKey = errors.New("invalid object key")
)

// Storage is an object store addressed by slash-separated keys. Keys are
// cleaned with CleanKey; a missing object yields ErrObjectNotFound.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download returns the object body; the caller closes it.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	DownloadFile(ctx context.Context, key string, localPath string) error

	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns a URL for key: a file path locally, the public object
	// URL on COS.
	GetURL(key string) string
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// ReportKey returns the key of a report file produced for a task.
func ReportKey(taskUUID, name string) string {
	return path.Join("reports", taskUUID, name)
}

// CleanKey normalizes an object key to a slash-separated relative path.
func CleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// ContentType returns the MIME type stored with an object of the given key.
func ContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".yaml"), strings.HasSuffix(key, ".yml"):
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

// NewStorage creates the backend selected by cfg.Type.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if StorageType(cfg.Type) == StorageTypeCOS {
		return NewCOSStorage(cosConfig(cfg))
	}
	return NewLocalStorage(cfg.LocalPath)
}

func cosConfig(cfg *config.StorageConfig) *COSConfig {
	return &COSConfig{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		SecretID:  cfg.SecretID,
		SecretKey: cfg.SecretKey,
		Domain:    cfg.Domain,
		Scheme:    cfg.Scheme,
	}
}

// ValidateConfig checks the settings the selected backend needs. An empty
// type means local.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return errors.New("storage config is nil")
	}
	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		return cosConfig(cfg).validate()
	case StorageTypeLocal, "":
		if cfg.LocalPath == "" {
			return errors.New("local storage path is required")
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
