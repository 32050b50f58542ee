// Package storage keeps uploaded contracts. Backends are interchangeable
// behind Store; the gateway picks one from configuration at startup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/ericksa/contractassist/internal/config"
)

var (
	ErrNotFound    = errors.New("contract not found")
	ErrInvalidName = errors.New("invalid contract name")
)

// Object describes a stored upload.
type Object struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store persists uploads by name. Save overwrites an existing object.
type Store interface {
	Save(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]Object, error)
}

// New builds the Store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		s, err := NewLocal(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMinIO:
		s, err := NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendGCS:
		s, err := NewGCS(ctx, cfg.GCS.Bucket)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// CleanName reduces a client supplied file name to its base name so it can
// never address anything outside the store.
func CleanName(name string) (string, error) {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsRune(base, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}
