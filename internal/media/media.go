// Package media stores uploaded files (avatars, cover images, video files)
// and returns the public reference persisted on the owning record.
package media

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store saves an uploaded file under a generated key and returns the public
// URL that callers persist as the media reference.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// RandomKey generates a date-partitioned storage key under the provided
// prefix, e.g. "avatars/2026/9/1/<uuid>".
func RandomKey(prefix string) string {
	now := time.Now()
	return fmt.Sprintf("%s/%d/%d/%d/%s", prefix, now.Year(), int(now.Month()), now.Day(), uuid.NewString())
}
