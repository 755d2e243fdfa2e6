// Package blobstore is the BlobSink abstraction: the object-store surface
// the orchestrator writes finished optimizations to. Its wire key is
// always the minted destination path, so the download URL returned at
// accept time resolves to exactly what gets uploaded here.
package blobstore

import "context"

// BlobSink is implemented by any object store the orchestrator can upload
// finished artifacts to.
type BlobSink interface {
	// Put uploads data under key with the given content type.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// URL resolves key to a publicly addressable download URL.
	URL(key string) string
}
