// Package storage writes backup artifacts to their long-term destination.
package storage

import (
	"context"
	"fmt"

	"github.com/johnngondi/vito/internal/models"
)

// Provider is an object store for backup artifacts. Delete must succeed
// when the path does not exist.
type Provider interface {
	Put(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
}

// Error wraps a failure from a storage backend.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Factory builds a Provider for a storage provider record.
type Factory interface {
	Provider(ctx context.Context, p models.StorageProvider) (Provider, error)
}

// DefaultFactory builds providers from their stored credentials.
type DefaultFactory struct {
	// LocalRoot is the directory used by "local" providers without a path.
	LocalRoot string
}

// Provider implements Factory.
func (f DefaultFactory) Provider(ctx context.Context, p models.StorageProvider) (Provider, error) {
	switch p.Provider {
	case "s3":
		return NewS3(ctx, p.Credentials)
	case "gcs":
		return NewGCS(ctx, p.Credentials)
	case "local":
		root := p.Credentials.Path
		if root == "" {
			root = f.LocalRoot
		}
		return NewLocal(root)
	}
	return nil, fmt.Errorf("unsupported storage provider %q", p.Provider)
}
