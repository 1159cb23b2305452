// Package storage puts uploaded files into managed object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var ErrNotConfigured = errors.New("object storage not configured")

// Object is a single upload. Path is relative to Bucket.
type Object struct {
	Bucket      string
	Path        string
	ContentType string
	Body        io.Reader
	Overwrite   bool
}

// ObjectStore stores objects and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, obj Object) (string, error)
}

// CloudinaryStore is an ObjectStore backed by Cloudinary. Buckets map to folders.
type CloudinaryStore struct {
	cld     *cloudinary.Cloudinary
	timeout time.Duration
}

// NewCloudinaryStore builds a store from a cloudinary:// URL.
func NewCloudinaryStore(cloudinaryURL string, timeout time.Duration) (*CloudinaryStore, error) {
	if cloudinaryURL == "" {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, timeout: timeout}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, obj Object) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resourceType := ResourceType(obj.ContentType)
	publicID := obj.Path
	if resourceType != "raw" {
		// image and video public ids carry no extension; the format is appended on delivery
		publicID = strings.TrimSuffix(obj.Path, path.Ext(obj.Path))
	}

	res, err := s.cld.Upload.Upload(ctx, obj.Body, uploader.UploadParams{
		PublicID:       publicID,
		Folder:         obj.Bucket,
		ResourceType:   resourceType,
		UniqueFilename: api.Bool(false),
		Overwrite:      api.Bool(obj.Overwrite),
		Invalidate:     api.Bool(obj.Overwrite),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", obj.Bucket, obj.Path, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("upload %s/%s: %s", obj.Bucket, obj.Path, res.Error.Message)
	}
	return res.SecureURL, nil
}

// ResourceType maps a media type to the Cloudinary resource type.
func ResourceType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"), strings.HasPrefix(contentType, "audio/"):
		return "video"
	default:
		return "raw"
	}
}

// Unavailable is used when no storage backend is configured; every upload fails.
type Unavailable struct{}

func (Unavailable) Put(context.Context, Object) (string, error) {
	return "", ErrNotConfigured
}
