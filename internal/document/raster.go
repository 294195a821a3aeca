package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"math"

	"github.com/Lllllllleong/journalbook/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

const jpegQuality = 85

// RenderPage rasterizes a page at scale times its size in points. The page's
// largest embedded image is drawn full-bleed onto a white canvas, which is how
// scanned journal pages are laid out. Pages with no image yield ErrNoRaster.
func (h *pdfHandle) RenderPage(ctx context.Context, page int, scale float64) (models.Raster, error) {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return models.Raster{}, &PageError{Page: page, Op: "render", Err: ErrBadScale}
	}
	if err := ctx.Err(); err != nil {
		return models.Raster{}, &PageError{Page: page, Op: "render", Err: err}
	}

	dim, data, err := h.pageImage(page)
	if err != nil {
		return models.Raster{}, &PageError{Page: page, Op: "render", Err: err}
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Raster{}, &PageError{Page: page, Op: "render", Err: fmt.Errorf("decode image: %w", err)}
	}
	h.logger.Debug("Rasterizing page.", "page", page, "scale", scale, "sourceFormat", format)

	r, err := rasterize(src, dim, scale)
	if err != nil {
		return models.Raster{}, &PageError{Page: page, Op: "render", Err: err}
	}
	return r, nil
}

// pageImage returns the page size and the encoded bytes of its largest image.
func (h *pdfHandle) pageImage(page int) (types.Dim, []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkPage(page); err != nil {
		return types.Dim{}, nil, err
	}

	dims, err := h.pctx.PageDims()
	if err != nil {
		return types.Dim{}, nil, fmt.Errorf("page dims: %w", err)
	}
	if page > len(dims) {
		return types.Dim{}, nil, fmt.Errorf("no dimensions for page %d", page)
	}

	images, err := pdfcpu.ExtractPageImages(h.pctx, page, false)
	if err != nil {
		return types.Dim{}, nil, fmt.Errorf("extract images: %w", err)
	}
	var (
		best     io.Reader
		bestArea int
	)
	for _, img := range images {
		if img.Reader == nil {
			continue
		}
		if area := img.Width * img.Height; best == nil || area > bestArea {
			best, bestArea = img.Reader, area
		}
	}
	if best == nil {
		return types.Dim{}, nil, ErrNoRaster
	}
	data, err := io.ReadAll(best)
	if err != nil {
		return types.Dim{}, nil, fmt.Errorf("read image: %w", err)
	}
	return dims[page-1], data, nil
}

func rasterize(src image.Image, dim types.Dim, scale float64) (models.Raster, error) {
	w := int(math.Round(dim.Width * scale))
	h := int(math.Round(dim.Height * scale))
	if w < 1 || h < 1 {
		return models.Raster{}, fmt.Errorf("degenerate canvas %dx%d", w, h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return models.Raster{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return models.Raster{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    w,
		Height:   h,
	}, nil
}
