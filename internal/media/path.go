package media

import (
	"fmt"
	"strings"
	"time"
)

const (
	AttachmentsBucket = "message-attachments"
	ProfileBucket     = "avatars"
)

// ObjectPath is the storage path of a chat attachment:
// <userID>/<unix-millis>.<ext>.
func ObjectPath(userID string, at time.Time, name string) string {
	return fmt.Sprintf("%s/%d.%s", userID, at.UnixMilli(), Extension(name))
}

// ProfileObjectPath is the fixed storage path of a profile image, e.g.
// <userID>/avatar.png. Re-uploading replaces the previous object.
func ProfileObjectPath(userID string, p Purpose, name string) string {
	return fmt.Sprintf("%s/%s.%s", userID, p, Extension(name))
}

// Extension returns the text after the last dot of name, or the whole name
// when it has none.
func Extension(name string) string {
	ext := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	return strings.NewReplacer("/", "_", "\\", "_").Replace(ext)
}
