// Package storage provides object storage for listing photos.
//
// Two implementations back the Storage interface: LocalStorage writes to the
// filesystem for development, R2Storage targets Cloudflare R2 (S3-compatible)
// in production. The core only ever records the returned key string; URL
// generation is the storage provider's concern.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Storage defines the object storage operations the application needs.
// All methods are context-aware for timeout and cancellation.
type Storage interface {
	// Put stores data at key. Fails with ErrKeyExists when the key is taken
	// and opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the object's data (caller closes) and metadata, or
	// ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object. Idempotent: deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error

	// URL returns a time-bounded signed URL for the object, or a permanent
	// public URL when the provider has one configured.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	ContentType string // MIME type; sniffed when empty
	MaxSize     int64  // reject larger payloads with ErrTooLarge; 0 = no limit
	Overwrite   bool   // allow replacing an existing object
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	BasePath string // root directory for stored files
	BaseURL  string // public URL prefix, e.g. http://localhost:8080/files
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string // optional custom domain; presigned URLs when empty
	Region          string // any valid region string; R2 accepts "auto"
}

// Storage provider names accepted in configuration.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// PhotoKey generates a storage key for an uploaded listing photo.
// Format: listings/{yyyy/mm}/{uuid}.{ext}
func PhotoKey(filename string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("listings/%04d/%02d/%s%s", now.Year(), now.Month(), uuid.New(), filepath.Ext(filename))
}

// ThumbnailKey derives the thumbnail key for a photo key.
func ThumbnailKey(photoKey string) string {
	ext := filepath.Ext(photoKey)
	return photoKey[:len(photoKey)-len(ext)] + "_thumb.jpg"
}
