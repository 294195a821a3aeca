// Package cache memoizes per-page document artifacts: rasterized images keyed
// by page and scale, and extracted text keyed by page.
//
// Concurrent requests for the same key share a single call to the source and
// all receive its outcome. Failures are never stored, so the next request
// after a failed one calls the source again. Entries live until Clear.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/Lllllllleong/journalbook/internal/models"
	"golang.org/x/sync/singleflight"
)

// Source produces page artifacts. Page numbers are those of the source
// document, starting at 1.
type Source interface {
	PageCount() int
	PageText(ctx context.Context, page int) (string, error)
	RenderPage(ctx context.Context, page int, scale float64) (models.Raster, error)
}

type imageKey struct {
	page  int
	scale float64
}

// Cache is safe for concurrent use.
type Cache struct {
	src     Source
	flights singleflight.Group

	mu     sync.Mutex
	epoch  uint64
	images map[imageKey]models.Raster
	texts  map[int]string
}

// New creates an empty cache in front of src.
func New(src Source) *Cache {
	return &Cache{
		src:    src,
		images: make(map[imageKey]models.Raster),
		texts:  make(map[int]string),
	}
}

// PageCount reports the page count of the underlying source.
func (c *Cache) PageCount() int {
	return c.src.PageCount()
}

// Image returns the page rasterized at scale. Different scales are distinct
// entries.
func (c *Cache) Image(ctx context.Context, page int, scale float64) (models.Raster, error) {
	key := imageKey{page: page, scale: scale}
	c.mu.Lock()
	if r, ok := c.images[key]; ok {
		c.mu.Unlock()
		return r, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	v, err := c.do(ctx, fmt.Sprintf("%d/image/%d@%g", epoch, page, scale), func(fctx context.Context) (any, error) {
		c.mu.Lock()
		r, ok := c.images[key]
		c.mu.Unlock()
		if ok {
			return r, nil
		}

		r, err := c.src.RenderPage(fctx, page, scale)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.images[key] = r
		}
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return models.Raster{}, err
	}
	return v.(models.Raster), nil
}

// Text returns the extracted text of a page.
func (c *Cache) Text(ctx context.Context, page int) (string, error) {
	c.mu.Lock()
	if s, ok := c.texts[page]; ok {
		c.mu.Unlock()
		return s, nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	v, err := c.do(ctx, fmt.Sprintf("%d/text/%d", epoch, page), func(fctx context.Context) (any, error) {
		c.mu.Lock()
		s, ok := c.texts[page]
		c.mu.Unlock()
		if ok {
			return s, nil
		}

		s, err := c.src.PageText(fctx, page)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.epoch == epoch {
			c.texts[page] = s
		}
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// do runs fn once per key across concurrent callers. The shared call is
// detached from any single caller's cancellation; a cancelled caller stops
// waiting and the others still get the result.
func (c *Cache) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.flights.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Clear drops every entry of both stores. Calls in flight when Clear runs do
// not store their results, and later requests start new calls.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	clear(c.images)
	clear(c.texts)
}

// Len reports the number of stored images and texts.
func (c *Cache) Len() (images, texts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images), len(c.texts)
}
