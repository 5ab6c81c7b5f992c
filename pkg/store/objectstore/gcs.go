package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/runscan/pkg/errors"
)

// GCSAPI is the subset of GCS operations used by GCSBackend.
type GCSAPI interface {
	ObjectSize(ctx context.Context, bucket, key string) (int64, error)
	NewRangeReader(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error)
}

// GCSClient adapts a storage client to GCSAPI.
type GCSClient struct {
	client *storage.Client
}

// NewGCSClient connects with credentialsFile, or the default credentials when
// it is empty.
func NewGCSClient(ctx context.Context, credentialsFile string) (*GCSClient, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "create GCS client")
	}
	return &GCSClient{client: client}, nil
}

// ObjectSize implements GCSAPI.
func (c *GCSClient) ObjectSize(ctx context.Context, bucket, key string) (int64, error) {
	attrs, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

// NewRangeReader implements GCSAPI.
func (c *GCSClient) NewRangeReader(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(key).NewRangeReader(ctx, offset, length)
}

// Close closes the underlying client.
func (c *GCSClient) Close() error {
	return c.client.Close()
}

// GCSBackend reads objects of one bucket.
type GCSBackend struct {
	api    GCSAPI
	bucket string
}

// NewGCSBackend creates a backend for bucket.
func NewGCSBackend(api GCSAPI, bucket string) *GCSBackend {
	return &GCSBackend{api: api, bucket: bucket}
}

// Size implements Backend.
func (b *GCSBackend) Size(ctx context.Context, key string) (int64, error) {
	size, err := b.api.ObjectSize(ctx, b.bucket, key)
	if err != nil {
		return 0, gcsError(err)
	}
	return size, nil
}

// ReadRange implements Backend.
func (b *GCSBackend) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	r, err := b.api.NewRangeReader(ctx, b.bucket, key, offset, length)
	if err != nil {
		return nil, gcsError(err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func gcsError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%w: %v", errNotFound, err)
	}
	return err
}
