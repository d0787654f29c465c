package storage

import (
	"context"
	"strings"
)

type Storage interface {
	// Put stores data under name and returns the location it was written to
	Put(ctx context.Context, name string, data []byte) (string, error)
}

type Config struct {
	// Location is a local directory or an s3://bucket/prefix URL
	Location string
	// S3Endpoint overrides the S3 endpoint, e.g. for MinIO
	S3Endpoint string
}

// Open returns the backend for c.Location. Local directories are created if
// they do not exist yet.
func Open(ctx context.Context, c Config) (Storage, error) {
	if strings.HasPrefix(c.Location, "s3://") {
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(c.Location, "s3://"), "/")
		return NewS3Storage(ctx, S3Config{
			Bucket:   bucket,
			Prefix:   prefix,
			Endpoint: c.S3Endpoint,
		})
	}
	return NewFileStorage(ctx, FileConfig{
		Directory: c.Location,
	})
}
