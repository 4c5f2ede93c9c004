// Package blob stores uploaded documents and cached OCR text in an object
// store.
package blob

import (
	"context"
	"fmt"
	"strings"
)

// Location addresses a stored object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// Store is the document object store.
type Store interface {
	// Resolve finds the object a document key or s3:// URI refers to.
	Resolve(ctx context.Context, keyOrURI string) (Location, error)
	// GetBlob resolves keyOrURI and reads the object.
	GetBlob(ctx context.Context, keyOrURI string) ([]byte, Location, error)
	// PutBlob writes data under the configured prefix.
	PutBlob(ctx context.Context, key string, data []byte) (Location, error)
	// GetCachedText returns the cached OCR text of an upload. Every failure
	// reads as a miss.
	GetCachedText(ctx context.Context, uploadID string) (string, bool)
	// PutCachedText caches the OCR text of an upload.
	PutCachedText(ctx context.Context, uploadID, text string) error
}

// NotFoundError lists every key tried while resolving a document.
type NotFoundError struct {
	Bucket string
	Tried  []string
	Nearby []string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("blob: no such key, tried (in order):")
	for _, k := range e.Tried {
		fmt.Fprintf(&b, "\n - %s/%s", e.Bucket, k)
	}
	if len(e.Nearby) > 0 {
		fmt.Fprintf(&b, "\nnearby keys under %s/%s:", e.Bucket, dirOf(e.Tried[0]))
		for _, k := range e.Nearby {
			fmt.Fprintf(&b, "\n * %s", k)
		}
	}
	return b.String()
}

// CacheKey is the object key of an upload's cached OCR text.
func CacheKey(uploadID string) string {
	return "ocr_texts/" + uploadID + ".txt"
}
