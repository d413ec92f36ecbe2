// Package mediastore persists downloaded company images.
//
// Two backends are available: a local directory for single-node deployments
// and S3 (or any S3-compatible endpoint) for shared storage. Both satisfy
// core.ImageStore.
package mediastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dirlisting/importer/internal/config"
	"github.com/dirlisting/importer/internal/core"
)

// New builds the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (core.ImageStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs":
		return NewFSStore(cfg.FSRoot, cfg.PublicBaseURL)
	case "s3":
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// cleanKey rejects keys that could escape the store's namespace.
func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return key, nil
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + key
}
