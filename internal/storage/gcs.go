package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS stores uploads in a Cloud Storage bucket using application default
// credentials.
type GCS struct {
	client *gcstorage.Client
	bucket *gcstorage.BucketHandle
}

func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket)}, nil
}

func (s *GCS) Save(ctx context.Context, name string, data []byte) error {
	key, err := CleanName(name)
	if err != nil {
		return err
	}
	writer := s.bucket.Object(key).NewWriter(ctx)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func (s *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from GCS: %w", err)
	}
	return r, nil
}

func (s *GCS) List(ctx context.Context) ([]Object, error) {
	objects := []Object{}
	it := s.bucket.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects: %w", err)
		}
		objects = append(objects, Object{
			Name:     attrs.Name,
			Size:     attrs.Size,
			Modified: attrs.Updated,
		})
	}
	return objects, nil
}

func (s *GCS) Close() error {
	return s.client.Close()
}
