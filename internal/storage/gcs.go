package storage

import (
	"context"
	"errors"
	"fmt"
	"path"

	gcs "cloud.google.com/go/storage"
	"github.com/johnngondi/vito/internal/models"
	"google.golang.org/api/option"
)

// GCS stores artifacts in a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket string
	prefix string
}

func NewGCS(ctx context.Context, creds models.StorageCredentials) (*GCS, error) {
	if creds.Bucket == "" {
		return nil, fmt.Errorf("gcs storage needs a bucket")
	}
	var opts []option.ClientOption
	if creds.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.CredentialsJSON)))
	}
	if creds.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(creds.Endpoint))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: creds.Bucket, prefix: creds.Prefix}, nil
}

func (g *GCS) object(p string) *gcs.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, p))
}

func (g *GCS) Put(ctx context.Context, p string, data []byte) error {
	w := g.object(p).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return &Error{Op: "put", Path: p, Err: err}
	}
	// The object only becomes visible once Close succeeds.
	if err := w.Close(); err != nil {
		return &Error{Op: "put", Path: p, Err: err}
	}
	return nil
}

func (g *GCS) Delete(ctx context.Context, p string) error {
	err := g.object(p).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return &Error{Op: "delete", Path: p, Err: err}
	}
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
