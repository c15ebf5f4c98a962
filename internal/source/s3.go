package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bleedingdev/salesdash/internal/sales"
)

// parseS3 splits s3://bucket/key.
func parseS3(location string) (bucket, key string, err error) {
	rest := location[strings.Index(location, "://")+3:]
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: expected s3://bucket/key, got %q", ErrInvalidLocation, location)
	}
	return bucket, key, nil
}

func (l *Loader) s3Client() (*minio.Client, error) {
	opts := &minio.Options{
		Secure: l.s3.UseSSL,
		Region: l.s3.Region,
	}
	if l.s3.AccessKey != "" {
		opts.Creds = credentials.NewStaticV4(l.s3.AccessKey, l.s3.SecretKey, "")
	} else {
		opts.Creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(l.s3.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return client, nil
}

func (l *Loader) loadS3(ctx context.Context, location string) (*sales.Dataset, error) {
	bucket, key, err := parseS3(location)
	if err != nil {
		return nil, err
	}
	client, err := l.s3Client()
	if err != nil {
		return nil, err
	}
	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces missing objects before the CSV reader does.
	if _, err := obj.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: object %s/%s not found", ErrInvalidLocation, bucket, key)
		}
		return nil, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return sales.Load(obj)
}
