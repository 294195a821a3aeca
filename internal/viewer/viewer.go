// Package viewer is the interactive book state machine: it owns the page
// catalog, the current page cursor, the flip lock and the book's 3D pose, and
// fetches the current page image through the page cache.
//
// Cursor 0 is the closed book, 1 the index page and 2..TotalPages the pages
// of the source document. Page failures never surface here; a page that
// cannot be rasterized is shown as text.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Lllllllleong/journalbook/internal/cache"
	"github.com/Lllllllleong/journalbook/internal/catalog"
	"github.com/Lllllllleong/journalbook/internal/covers"
	"github.com/Lllllllleong/journalbook/internal/document"
	"github.com/Lllllllleong/journalbook/internal/models"
	"github.com/google/uuid"
)

var (
	ErrClosed     = errors.New("viewer closed")
	ErrSuperseded = errors.New("load superseded by a newer load")
)

// Config configures a Viewer.
type Config struct {
	Opener document.Opener

	// IndexImage is the static image of the index page.
	IndexImage string

	// RenderScale is the raster scale of page images (default: 1.5).
	RenderScale float64

	// BuildConcurrency bounds parallel text extraction during a load (default: 4).
	BuildConcurrency int

	// Covers defaults to covers.Default().
	Covers []models.Cover

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.RenderScale <= 0 || math.IsNaN(c.RenderScale) || math.IsInf(c.RenderScale, 0) {
		c.RenderScale = 1.5
	}
	if c.BuildConcurrency <= 0 {
		c.BuildConcurrency = 4
	}
	if len(c.Covers) == 0 {
		c.Covers = covers.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// State is what the presentation layer reads.
type State struct {
	Cursor     int
	TotalPages int
	Flipping   bool
	Page       *models.PageDescriptor // nil when closed
	Image      *models.Raster         // nil until the current page is rasterized
	Pose       models.Pose
	Dragging   bool
	Cover      models.Cover
}

// Viewer is safe for concurrent use.
type Viewer struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	renders sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	handle     document.Handle
	cache      *cache.Cache
	catalog    []models.PageDescriptor
	cursor     int
	flipping   bool
	image      *models.Raster
	navSeq     uint64
	loadSeq    uint64
	cancelLoad context.CancelFunc
	cover      models.Cover
	pose       *Orientation
}

// New creates a closed viewer with an empty catalog. Call Load to open a document.
func New(cfg Config) (*Viewer, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("viewer: an Opener must be provided")
	}
	cfg.defaults()
	cover, _ := covers.Initial(cfg.Covers)

	ctx, cancel := context.WithCancel(context.Background())
	return &Viewer{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		cover:  cover,
		pose:   NewOrientation(),
	}, nil
}

// Load opens ref, builds its catalog and replaces the current document. A
// newer Load cancels this one and its result is discarded. When the document
// cannot be opened the catalog falls back to the index page alone and the
// *document.OpenError is returned.
func (v *Viewer) Load(ctx context.Context, ref string) error {
	logCtx := v.logger.With("ref", ref, "loadId", uuid.Must(uuid.NewV7()).String())

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.cancelLoad != nil {
		v.cancelLoad()
	}
	v.loadSeq++
	seq := v.loadSeq
	lctx, cancel := context.WithCancel(ctx)
	v.cancelLoad = cancel
	v.mu.Unlock()
	defer cancel()

	opts := catalog.Options{
		IndexImage:  v.cfg.IndexImage,
		Concurrency: v.cfg.BuildConcurrency,
		Logger:      logCtx,
	}

	logCtx.Info("Loading document.")
	h, err := v.cfg.Opener.Open(lctx, ref)
	if err != nil {
		var openErr *document.OpenError
		if !errors.As(err, &openErr) {
			err = &document.OpenError{Ref: ref, Err: err}
		}
		logCtx.Error("Failed to open document, only the index page is available.", "error", err)
		pages, _ := catalog.Build(lctx, nil, opts)
		if !v.commit(seq, nil, nil, pages) {
			return ErrSuperseded
		}
		return err
	}

	c := cache.New(h)
	pages, err := catalog.Build(lctx, c, opts)
	if err != nil {
		h.Close()
		if v.superseded(seq) {
			logCtx.Info("Load superseded during catalog build.")
			return ErrSuperseded
		}
		logCtx.Error("Failed to build catalog.", "error", err)
		return fmt.Errorf("build catalog: %w", err)
	}
	if !v.commit(seq, h, c, pages) {
		h.Close()
		logCtx.Info("Load superseded, discarding result.")
		return ErrSuperseded
	}
	logCtx.Info("Document loaded.", "totalPages", len(pages))
	return nil
}

func (v *Viewer) superseded(seq uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed || seq != v.loadSeq
}

// commit installs a finished load unless a newer one started since.
func (v *Viewer) commit(seq uint64, h document.Handle, c *cache.Cache, pages []models.PageDescriptor) bool {
	v.mu.Lock()
	if v.closed || seq != v.loadSeq {
		v.mu.Unlock()
		return false
	}
	oldHandle, oldCache := v.handle, v.cache
	v.handle, v.cache, v.catalog = h, c, pages
	v.cursor = 0
	v.flipping = false
	v.cursorChangedLocked()
	v.mu.Unlock()

	if oldCache != nil {
		oldCache.Clear()
	}
	if oldHandle != nil {
		if err := oldHandle.Close(); err != nil {
			v.logger.Warn("Failed to close previous document.", "error", err)
		}
	}
	return true
}

// Next turns one page forward. It does nothing on the last page or while a
// flip is in progress.
func (v *Viewer) Next() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.flipping || v.cursor >= len(v.catalog) {
		return false
	}
	v.cursor++
	v.flipping = true
	v.cursorChangedLocked()
	return true
}

// Prev turns one page back. It does nothing when closed or while a flip is in
// progress.
func (v *Viewer) Prev() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.flipping || v.cursor <= 0 {
		return false
	}
	v.cursor--
	v.flipping = true
	v.cursorChangedLocked()
	return true
}

// FlipDone ends the flip animation and unlocks navigation.
func (v *Viewer) FlipDone() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flipping = false
}

// JumpTo opens the catalog entry at the zero-based index target. The target is
// floored and clamped into range, NaN counts as 0. Jumps are not animated and
// ignore the flip lock.
func (v *Viewer) JumpTo(target float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := len(v.catalog)
	if total == 0 {
		return
	}
	cursor := clampIndex(target, total-1) + 1
	if cursor == v.cursor {
		return
	}
	v.cursor = cursor
	v.cursorChangedLocked()
}

func clampIndex(target float64, max int) int {
	if math.IsNaN(target) {
		return 0
	}
	f := math.Floor(target)
	if f <= 0 {
		return 0
	}
	if f >= float64(max) {
		return max
	}
	return int(f)
}

// cursorChangedLocked drops the current image and, for source document pages,
// starts rendering the new one in the background. v.mu must be held.
func (v *Viewer) cursorChangedLocked() {
	v.navSeq++
	v.image = nil
	if v.closed || v.cursor <= 1 || v.cache == nil {
		return
	}
	seq, c, page := v.navSeq, v.cache, catalog.SourcePage(v.cursor)
	v.renders.Add(1)
	go v.render(seq, c, page)
}

func (v *Viewer) render(seq uint64, c *cache.Cache, page int) {
	defer v.renders.Done()
	r, err := c.Image(v.ctx, page, v.cfg.RenderScale)
	if err != nil {
		v.logger.Warn("Page render failed, showing text instead.", "sourcePage", page, "error", err)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.navSeq {
		return
	}
	v.image = &r
}

// SelectCover switches to the cover with the given ID. Covers without an
// image cannot be selected.
func (v *Viewer) SelectCover(id string) bool {
	c, ok := covers.Find(v.cfg.Covers, id)
	if !ok {
		return false
	}
	v.mu.Lock()
	v.cover = c
	v.mu.Unlock()
	return true
}

// Covers lists the selectable covers.
func (v *Viewer) Covers() []models.Cover {
	return covers.Selectable(v.cfg.Covers)
}

// DragStart begins a tilt gesture at p.
func (v *Viewer) DragStart(p Point, in Input) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pose.Start(p, in)
}

// DragMove tilts the book by the pointer movement since the last call.
func (v *Viewer) DragMove(p Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pose.Move(p)
}

// DragEnd ends the gesture and keeps the current pose.
func (v *Viewer) DragEnd() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pose.End()
}

// State returns a snapshot of everything the presentation layer shows.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := State{
		Cursor:     v.cursor,
		TotalPages: len(v.catalog),
		Flipping:   v.flipping,
		Pose:       v.pose.Pose(),
		Dragging:   v.pose.Dragging(),
		Cover:      v.cover,
	}
	if v.cursor > 0 && v.cursor <= len(v.catalog) {
		page := v.catalog[v.cursor-1]
		s.Page = &page
	}
	if v.image != nil {
		img := *v.image
		s.Image = &img
	}
	return s
}

// Close cancels any load, waits for background renders and closes the document.
func (v *Viewer) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	if v.cancelLoad != nil {
		v.cancelLoad()
	}
	v.cancel()
	h, c := v.handle, v.cache
	v.handle, v.cache = nil, nil
	v.mu.Unlock()

	v.renders.Wait()
	if c != nil {
		c.Clear()
	}
	if h != nil {
		return h.Close()
	}
	return nil
}
