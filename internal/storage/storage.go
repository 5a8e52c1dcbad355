// Package storage defines the blob store used for failure screenshots.
package storage

import "context"

// BlobStore persists one named artifact and returns a URI for it.
// Implementations: local filesystem and Google Cloud Storage.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Noop discards artifacts; used when screenshots are disabled.
type Noop struct{}

// PutObject drops the data and returns an empty URI.
func (Noop) PutObject(context.Context, string, string, []byte) (string, error) {
	return "", nil
}
