// Package storage persists reports and cached verdicts on the local filesystem or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// Storage stores opaque objects under slash-separated keys.
type Storage interface {
	// Put writes data under key, replacing any previous object.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get opens the object under key. Callers must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Type names a storage backend.
type Type string

const (
	TypeLocal Type = "local"
	TypeS3    Type = "s3"
)

// Config holds configuration for storage
type Config struct {
	Type         Type
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Endpoint   string // Optional S3-compatible endpoint; enables path-style addressing
	AWSAccessKey string
	AWSSecretKey string
}

// DefaultLocalPath is used when a local backend is configured without a path.
const DefaultLocalPath = "./storage/files"

// New creates a storage backend from configuration.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		if cfg.LocalPath == "" {
			cfg.LocalPath = DefaultLocalPath
		}
		return NewLocalStorage(cfg.LocalPath)
	case TypeS3:
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// ReportKey returns a unique key for a generated report under runs/<run id>/.
func ReportKey(runID uuid.UUID, filename string) string {
	return path.Join("runs", runID.String(), sanitizeName(filename))
}

// cleanKey rejects keys that are empty or would escape the storage root.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(key)), "/")
	if key == "" {
		return "", errors.New("storage key is empty")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("storage key %q escapes the storage root", key)
		}
	}
	return path.Clean(key), nil
}

func sanitizeName(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, "\\", "_")
	return base + ext
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
