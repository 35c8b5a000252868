// Package rawstore keeps copies of uploaded CSV files on local disk or in a
// Google Cloud Storage bucket.
//
// Callers pass a path hint such as "uploads/user_7/plant.csv". Each backend
// stores the bytes under the hint's directory with a random hex prefix on
// the base name and returns that relative name as the reference.
package rawstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/google/uuid"
)

// Backend names accepted by New.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
	BackendNone  = "none"
)

// ErrInvalidPath is returned for hints or references that escape the store root.
var ErrInvalidPath = errors.New("invalid raw storage path")

// Store is a core.RawStore that holds resources until closed.
type Store interface {
	core.RawStore
	Close() error
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendLocal:
		return NewLocal(cfg.LocalDir)
	case BackendGCS:
		return NewGCS(ctx, cfg)
	case BackendNone, "":
		return nop{}, nil
	default:
		return nil, fmt.Errorf("unknown raw storage backend %q", cfg.Backend)
	}
}

type nop struct {
	core.NopRawStore
}

func (nop) Close() error { return nil }

// cleanRef validates a relative slash-separated name.
func cleanRef(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return cleaned, nil
}

// uniqueName turns a hint into "dir/{hex}_{base}".
func uniqueName(hint string) (string, error) {
	cleaned, err := cleanRef(hint)
	if err != nil {
		return "", err
	}
	dir, base := path.Split(cleaned)
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return dir + id + "_" + base, nil
}
