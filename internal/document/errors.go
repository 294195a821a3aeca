package document

import (
	"errors"
	"fmt"
)

var (
	ErrPageRange = errors.New("page out of range")
	ErrNoRaster  = errors.New("page has no raster content")
	ErrBadScale  = errors.New("scale must be positive and finite")
	ErrClosed    = errors.New("document closed")
)

// OpenError reports a document that could not be opened at all.
type OpenError struct {
	Ref string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Ref, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// PageError reports a failure confined to a single page.
type PageError struct {
	Page int
	Op   string // "text" or "render"
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d %s: %v", e.Page, e.Op, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
