package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFConfig configures the pdfcpu backed opener.
type PDFConfig struct {
	// Objects resolves gs://bucket/object references. Optional.
	Objects ObjectReader

	// Fallback extracts text from pages whose content stream has none. Optional.
	Fallback TextFallback

	// MaxFileSize rejects larger documents (default: 100 MB).
	MaxFileSize int64

	Logger *slog.Logger
}

func (c *PDFConfig) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PDFOpener opens PDF documents with pdfcpu.
type PDFOpener struct {
	cfg PDFConfig
}

// NewPDFOpener creates a PDFOpener with the given configuration.
func NewPDFOpener(cfg PDFConfig) *PDFOpener {
	cfg.defaults()
	return &PDFOpener{cfg: cfg}
}

// Open reads the whole document and validates it. Any failure is an *OpenError.
func (o *PDFOpener) Open(ctx context.Context, ref string) (Handle, error) {
	data, err := o.read(ctx, ref)
	if err != nil {
		return nil, &OpenError{Ref: ref, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &OpenError{Ref: ref, Err: err}
	}

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return nil, &OpenError{Ref: ref, Err: fmt.Errorf("pdfcpu read: %w", err)}
	}

	o.cfg.Logger.Debug("Document opened.", "ref", ref, "pageCount", pctx.PageCount, "bytes", len(data))
	return &pdfHandle{
		raw:      data,
		pctx:     pctx,
		fallback: o.cfg.Fallback,
		logger:   o.cfg.Logger.With("ref", ref),
	}, nil
}

func (o *PDFOpener) read(ctx context.Context, ref string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(ref, "gs://"); ok {
		bucket, object, found := strings.Cut(rest, "/")
		if !found || bucket == "" || object == "" {
			return nil, fmt.Errorf("malformed gs reference %q", ref)
		}
		if o.cfg.Objects == nil {
			return nil, fmt.Errorf("no object reader configured for %q", ref)
		}
		data, err := o.cfg.Objects.ReadObject(ctx, bucket, object)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > o.cfg.MaxFileSize {
			return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(data), o.cfg.MaxFileSize)
		}
		return data, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.Size() > o.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), o.cfg.MaxFileSize)
	}
	return os.ReadFile(ref)
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// pdfHandle serialises access to the pdfcpu context, which is not safe for
// concurrent use.
type pdfHandle struct {
	mu       sync.Mutex
	raw      []byte
	pctx     *model.Context
	fallback TextFallback
	logger   *slog.Logger
}

func (h *pdfHandle) PageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pctx == nil {
		return 0
	}
	return h.pctx.PageCount
}

// checkPage must be called with h.mu held.
func (h *pdfHandle) checkPage(page int) error {
	if h.pctx == nil {
		return ErrClosed
	}
	if page < 1 || page > h.pctx.PageCount {
		return fmt.Errorf("%w: %d of %d", ErrPageRange, page, h.pctx.PageCount)
	}
	return nil
}

func (h *pdfHandle) PageText(ctx context.Context, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &PageError{Page: page, Op: "text", Err: err}
	}
	text, err := h.scanPage(page)
	if err != nil {
		return "", &PageError{Page: page, Op: "text", Err: err}
	}
	if text != "" || h.fallback == nil {
		return text, nil
	}

	pagePDF, err := h.singlePage(page)
	if err != nil {
		return "", &PageError{Page: page, Op: "text", Err: err}
	}
	h.logger.Debug("Content stream has no text, using fallback.", "page", page)
	text, err = h.fallback.PageText(ctx, pagePDF)
	if err != nil {
		return "", &PageError{Page: page, Op: "text", Err: fmt.Errorf("fallback: %w", err)}
	}
	return text, nil
}

func (h *pdfHandle) scanPage(page int) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkPage(page); err != nil {
		return "", err
	}
	r, err := pdfcpu.ExtractPageContent(h.pctx, page)
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return scanContentStream(data), nil
}

// singlePage cuts the given page out of the source document as a standalone PDF.
func (h *pdfHandle) singlePage(page int) ([]byte, error) {
	h.mu.Lock()
	raw := h.raw
	h.mu.Unlock()
	if raw == nil {
		return nil, ErrClosed
	}
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(raw), &buf, []string{strconv.Itoa(page)}, newConfiguration()); err != nil {
		return nil, fmt.Errorf("trim page: %w", err)
	}
	return buf.Bytes(), nil
}

func (h *pdfHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pctx = nil
	h.raw = nil
	return nil
}
