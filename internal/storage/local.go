package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores artifacts on the control plane's own disk.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage needs a root directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if !strings.HasPrefix(full, l.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return full, nil
}

func (l *Local) Put(_ context.Context, path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return &Error{Op: "put", Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &Error{Op: "put", Path: path, Err: err}
	}
	tmp := full + ".partial"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		os.Remove(tmp)
		return &Error{Op: "put", Path: path, Err: err}
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return &Error{Op: "put", Path: path, Err: err}
	}
	return nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return &Error{Op: "delete", Path: path, Err: err}
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "delete", Path: path, Err: err}
	}
	return nil
}
