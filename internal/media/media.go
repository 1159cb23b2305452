// Package media validates uploaded files and derives storage paths for them.
package media

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"campus-messaging/internal/models"
)

// Purpose selects the validation rule applied to an upload.
type Purpose string

const (
	PurposeAvatar Purpose = "avatar"
	PurposeCover  Purpose = "cover"
	PurposeChat   Purpose = "chat"
	PurposePost   Purpose = "post"
)

const MB = 1 << 20

type Rule struct {
	MaxBytes   int64
	ImagesOnly bool
}

var rules = map[Purpose]Rule{
	PurposeAvatar: {MaxBytes: 5 * MB, ImagesOnly: true},
	PurposeCover:  {MaxBytes: 10 * MB, ImagesOnly: true},
	PurposeChat:   {MaxBytes: 50 * MB},
	PurposePost:   {MaxBytes: 50 * MB},
}

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,

	"video/mp4":  true,
	"video/webm": true,
	"video/ogg":  true,

	"audio/mp3":  true,
	"audio/wav":  true,
	"audio/ogg":  true,
	"audio/mpeg": true,

	"application/pdf":    true,
	"application/msword": true,
	"text/plain":         true,
	"text/csv":           true,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// RuleFor returns the rule for p.
func RuleFor(p Purpose) (Rule, bool) {
	r, ok := rules[p]
	return r, ok
}

// File is an upload candidate. Open may be called more than once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromMultipart adapts a multipart file header.
func FromMultipart(fh *multipart.FileHeader) File {
	return File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// FromBytes wraps an in-memory payload.
func FromBytes(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// ValidationError names the rejected file.
type ValidationError struct {
	File   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("file %s: %s", e.File, e.Reason)
}

// Validate checks f against the rule for p and settles f.ContentType, sniffing
// the content when the declared type is missing or generic.
func Validate(p Purpose, f *File) error {
	rule, ok := rules[p]
	if !ok {
		return fmt.Errorf("unknown upload purpose %q", p)
	}
	if f.Size > rule.MaxBytes {
		return &ValidationError{File: f.Name, Reason: fmt.Sprintf("too large, maximum size is %dMB", rule.MaxBytes/MB)}
	}

	ct, err := ContentType(f)
	if err != nil {
		return &ValidationError{File: f.Name, Reason: "could not be read"}
	}
	f.ContentType = ct

	if rule.ImagesOnly {
		if !strings.HasPrefix(ct, "image/") {
			return &ValidationError{File: f.Name, Reason: "please select an image file"}
		}
		return nil
	}
	if !allowedTypes[ct] {
		return &ValidationError{File: f.Name, Reason: fmt.Sprintf("type %s is not supported", ct)}
	}
	return nil
}

// ContentType returns the declared media type, or the sniffed one when the
// declaration is empty or application/octet-stream.
func ContentType(f *File) (string, error) {
	declared := normalize(f.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		return declared, nil
	}
	if f.Open == nil {
		return "application/octet-stream", nil
	}

	r, err := f.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return "", err
	}
	return normalize(detected.String()), nil
}

func normalize(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mediaType
}

// MessageTypeFor maps an attachment media type to a message type.
func MessageTypeFor(contentType string) models.MessageType {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return models.MessageImage
	case strings.HasPrefix(contentType, "video/"):
		return models.MessageVideo
	case strings.HasPrefix(contentType, "audio/"):
		return models.MessageAudio
	default:
		return models.MessageDocument
	}
}
