// Package document opens paginated documents and answers per-page questions:
// how many pages there are, what text a page holds and what it looks like
// rasterized.
package document

import (
	"context"

	"github.com/Lllllllleong/journalbook/internal/models"
)

// Opener opens a document by reference.
type Opener interface {
	Open(ctx context.Context, ref string) (Handle, error)
}

// Handle is an opened document. Page numbers are 1-based.
type Handle interface {
	PageCount() int
	PageText(ctx context.Context, page int) (string, error)
	RenderPage(ctx context.Context, page int, scale float64) (models.Raster, error)
	Close() error
}

// ObjectReader fetches a remote object in full. It backs gs:// references.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// TextFallback extracts text from a single-page PDF when the content stream
// scan finds none (scanned pages, outlined fonts).
type TextFallback interface {
	PageText(ctx context.Context, pagePDF []byte) (string, error)
}
