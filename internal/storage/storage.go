package storage

import (
	"context"
	"strings"
)

// ArtifactReader reads a stored stage artifact by its reference key.
type ArtifactReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// SplitKey accepts "gs://bucket/object", "bucket/object" when bucket matches
// the default, or a bare object name, and returns the bucket and object.
func SplitKey(defaultBucket, key string) (bucket, object string) {
	key = strings.TrimSpace(key)
	for _, scheme := range []string{"gs://", "s3://"} {
		if rest, ok := strings.CutPrefix(key, scheme); ok {
			b, o, found := strings.Cut(rest, "/")
			if !found {
				return b, ""
			}
			return b, o
		}
	}
	if defaultBucket != "" {
		if o, ok := strings.CutPrefix(key, defaultBucket+"/"); ok {
			return defaultBucket, o
		}
	}
	return defaultBucket, strings.TrimPrefix(key, "/")
}
