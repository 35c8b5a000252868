package rawstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores raw uploads under a directory on disk.
type Local struct {
	root string
}

// NewLocal creates root if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("raw storage dir is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create raw storage dir: %w", err)
	}
	return &Local{root: root}, nil
}

// Save writes data to a new file and returns its path relative to the root.
// The file appears atomically under its final name.
func (l *Local) Save(ctx context.Context, pathHint string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref, err := uniqueName(pathHint)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(l.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write raw upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close raw upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("move raw upload into place: %w", err)
	}
	return ref, nil
}

// Delete removes a stored file. A file that is already gone is not an error.
func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := cleanRef(ref)
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(l.root, filepath.FromSlash(cleaned)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete raw upload: %w", err)
	}
	return nil
}

// Close implements Store.
func (l *Local) Close() error { return nil }
