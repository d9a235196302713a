// Package storage holds the bytes of generated images.
package storage

import (
	"context"
	"path"
	"strings"
)

// Metadata keys attached to every stored image.
const (
	MetaFingerprint = "fingerprint"
	MetaSpecID      = "spec-id"
)

// Object is one generated image ready to be written.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// ImageStore writes generated images and resolves their public URLs.
// Keys are slash separated and never start with a slash.
type ImageStore interface {
	Put(ctx context.Context, obj Object) error
	Has(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
	URL(key string) string
}

// Key joins parts into an object key, dropping empty parts and stray slashes.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}
