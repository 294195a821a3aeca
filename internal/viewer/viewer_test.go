package viewer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/journalbook/internal/document"
	"github.com/Lllllllleong/journalbook/internal/models"
)

type fakeHandle struct {
	pages int

	mu          sync.Mutex
	renderCalls []int
	scales      []float64
	failRender  map[int]bool
	failText    map[int]bool
	gates       map[int]chan struct{}
	closed      bool
}

func (h *fakeHandle) PageCount() int { return h.pages }

func (h *fakeHandle) PageText(ctx context.Context, page int) (string, error) {
	if h.failText[page] {
		return "", &document.PageError{Page: page, Op: "text", Err: errors.New("bad font")}
	}
	return "page text", nil
}

func (h *fakeHandle) RenderPage(ctx context.Context, page int, scale float64) (models.Raster, error) {
	h.mu.Lock()
	h.renderCalls = append(h.renderCalls, page)
	h.scales = append(h.scales, scale)
	gate := h.gates[page]
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if h.failRender[page] {
		return models.Raster{}, &document.PageError{Page: page, Op: "render", Err: document.ErrNoRaster}
	}
	return models.Raster{Data: []byte{byte(page)}, MIMEType: "image/jpeg", Width: 10, Height: 14}, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeOpener struct {
	handles map[string]*fakeHandle
	// block, when set for a ref, holds Open until the channel is closed.
	block   map[string]chan struct{}
	opening chan string
}

func (o *fakeOpener) Open(ctx context.Context, ref string) (document.Handle, error) {
	if o.opening != nil {
		o.opening <- ref
	}
	if ch := o.block[ref]; ch != nil {
		<-ch
	}
	h, ok := o.handles[ref]
	if !ok {
		return nil, &document.OpenError{Ref: ref, Err: errors.New("no such file")}
	}
	return h, nil
}

// newLoaded returns a viewer over a document with the given number of source
// pages, so TotalPages is pages+1.
func newLoaded(t *testing.T, h *fakeHandle) *Viewer {
	t.Helper()
	v, err := New(Config{Opener: &fakeOpener{handles: map[string]*fakeHandle{"doc.pdf": h}}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { v.Close() })
	if err := v.Load(context.Background(), "doc.pdf"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return v
}

func TestNew_RequiresOpener(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without opener")
	}
}

func TestNavigation_Bounds(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 7})
	if got := v.State().TotalPages; got != 8 {
		t.Fatalf("TotalPages = %d, want 8", got)
	}

	if v.Prev() {
		t.Error("Prev at cursor 0 should be a no-op")
	}
	for i := 1; i <= 8; i++ {
		if !v.Next() {
			t.Fatalf("Next #%d refused", i)
		}
		v.FlipDone()
	}
	if v.Next() {
		t.Error("Next at the last page should be a no-op")
	}
	if got := v.State().Cursor; got != 8 {
		t.Errorf("cursor = %d, want 8", got)
	}
	v.Prev()
	if got := v.State().Cursor; got != 7 {
		t.Errorf("cursor after Prev = %d, want 7", got)
	}
}

func TestNavigation_FlipLock(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 7})

	if !v.Next() {
		t.Fatal("first Next refused")
	}
	if v.Next() {
		t.Error("second Next during flip should be refused")
	}
	if v.Prev() {
		t.Error("Prev during flip should be refused")
	}
	s := v.State()
	if s.Cursor != 1 || !s.Flipping {
		t.Fatalf("state = cursor %d flipping %v, want 1 true", s.Cursor, s.Flipping)
	}

	v.FlipDone()
	if !v.Next() {
		t.Error("Next after FlipDone refused")
	}
	if got := v.State().Cursor; got != 2 {
		t.Errorf("cursor = %d, want 2", got)
	}
}

func TestJumpTo_Clamps(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 7})
	tests := []struct {
		target float64
		want   int
	}{
		{-5, 1},
		{100, 8},
		{0, 1},
		{2.7, 3},
		{7, 8},
		{math.NaN(), 1},
		{math.Inf(1), 8},
		{math.Inf(-1), 1},
	}
	for _, tt := range tests {
		v.JumpTo(tt.target)
		if got := v.State().Cursor; got != tt.want {
			t.Errorf("JumpTo(%v): cursor = %d, want %d", tt.target, got, tt.want)
		}
	}
}

func TestJumpTo_IgnoresFlipLock(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 7})
	v.Next()
	v.JumpTo(4)
	s := v.State()
	if s.Cursor != 5 {
		t.Errorf("cursor = %d, want 5", s.Cursor)
	}
	if !s.Flipping {
		t.Error("JumpTo should leave the running flip alone")
	}
}

func TestJumpTo_EmptyCatalog(t *testing.T) {
	v, err := New(Config{Opener: &fakeOpener{}})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	v.JumpTo(3)
	if got := v.State().Cursor; got != 0 {
		t.Errorf("cursor = %d, want 0", got)
	}
}

func TestCursorInvariant_RandomOperations(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 5})
	total := v.State().TotalPages
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		switch rng.Intn(4) {
		case 0:
			v.Next()
		case 1:
			v.Prev()
		case 2:
			v.JumpTo(float64(rng.Intn(30) - 10))
		case 3:
			v.FlipDone()
		}
		if c := v.State().Cursor; c < 0 || c > total {
			t.Fatalf("step %d: cursor %d outside [0, %d]", i, c, total)
		}
	}
}

func TestPage_Descriptor(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 3})
	if v.State().Page != nil {
		t.Error("closed book should have no page")
	}
	v.JumpTo(0)
	if p := v.State().Page; p == nil || p.Title != "Index" {
		t.Errorf("expected index page, got %+v", p)
	}
	v.JumpTo(2)
	if p := v.State().Page; p == nil || p.PageNumber != 3 || p.Content != "page text" {
		t.Errorf("unexpected page %+v", p)
	}
}

func TestImage_FetchedForSourcePages(t *testing.T) {
	h := &fakeHandle{pages: 5}
	v := newLoaded(t, h)

	v.JumpTo(2) // cursor 3, source page 2
	v.renders.Wait()
	s := v.State()
	if s.Image == nil {
		t.Fatal("expected an image for cursor 3")
	}
	if s.Image.Data[0] != 2 {
		t.Errorf("rendered source page %d, want 2", s.Image.Data[0])
	}
	h.mu.Lock()
	scale := h.scales[0]
	h.mu.Unlock()
	if scale != 1.5 {
		t.Errorf("render scale = %v, want 1.5", scale)
	}

	v.JumpTo(0) // index page
	if v.State().Image != nil {
		t.Error("image must be cleared on the index page")
	}
	v.renders.Wait()
	if v.State().Image != nil {
		t.Error("index page must never get a rendered image")
	}
}

func TestImage_RevisitUsesCache(t *testing.T) {
	h := &fakeHandle{pages: 5}
	v := newLoaded(t, h)

	v.JumpTo(2)
	v.renders.Wait()
	v.JumpTo(3)
	v.renders.Wait()
	v.JumpTo(2)
	v.renders.Wait()

	if v.State().Image == nil {
		t.Fatal("expected cached image")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.renderCalls) != 2 {
		t.Errorf("expected 2 render calls, got %v", h.renderCalls)
	}
}

func TestImage_ClearedWhileRenderPending(t *testing.T) {
	gate := make(chan struct{})
	h := &fakeHandle{pages: 5, gates: map[int]chan struct{}{2: gate}}
	v := newLoaded(t, h)

	v.JumpTo(3)
	v.renders.Wait()
	if v.State().Image == nil {
		t.Fatal("expected image for cursor 4")
	}

	v.JumpTo(2) // source page 2 blocks
	if v.State().Image != nil {
		t.Error("previous image must not bleed through while rendering")
	}
	if got := v.State().Cursor; got != 3 {
		t.Errorf("navigation must not wait for rendering, cursor = %d", got)
	}
	close(gate)
	v.renders.Wait()
	if img := v.State().Image; img == nil || img.Data[0] != 2 {
		t.Errorf("expected image of source page 2, got %+v", img)
	}
}

func TestImage_StaleResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	h := &fakeHandle{pages: 5, gates: map[int]chan struct{}{2: gate}}
	v := newLoaded(t, h)

	v.JumpTo(2) // source page 2, blocked
	v.JumpTo(3) // source page 3
	deadline := time.Now().Add(2 * time.Second)
	for v.State().Image == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(gate)
	v.renders.Wait()

	if img := v.State().Image; img == nil || img.Data[0] != 3 {
		t.Errorf("expected image of source page 3, got %+v", img)
	}
}

func TestImage_RenderFailureFallsBackToText(t *testing.T) {
	h := &fakeHandle{pages: 5, failRender: map[int]bool{2: true}}
	v := newLoaded(t, h)

	v.JumpTo(2)
	v.renders.Wait()
	s := v.State()
	if s.Image != nil {
		t.Error("failed render must leave no image")
	}
	if s.Page == nil || s.Page.Content != "page text" {
		t.Errorf("expected text content to remain, got %+v", s.Page)
	}
}

func TestLoad_TextFailureIsolated(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 5, failText: map[int]bool{3: true}})
	if got := v.State().TotalPages; got != 6 {
		t.Fatalf("TotalPages = %d, want 6", got)
	}
	v.JumpTo(3) // source page 3
	if p := v.State().Page; p == nil || p.Content != "" {
		t.Errorf("expected empty content for failed page, got %+v", p)
	}
}

func TestLoad_OpenFailureLeavesIndexOnly(t *testing.T) {
	v, err := New(Config{Opener: &fakeOpener{}})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	err = v.Load(context.Background(), "missing.pdf")
	var openErr *document.OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *document.OpenError, got %v", err)
	}
	if got := v.State().TotalPages; got != 1 {
		t.Fatalf("TotalPages = %d, want 1", got)
	}
	if !v.Next() {
		t.Fatal("index page should still be reachable")
	}
	v.FlipDone()
	if v.Next() {
		t.Error("nothing beyond the index page")
	}
	if p := v.State().Page; p == nil || p.Title != "Index" {
		t.Errorf("expected index page, got %+v", p)
	}
}

func TestLoad_ReloadReplacesDocument(t *testing.T) {
	a := &fakeHandle{pages: 5}
	b := &fakeHandle{pages: 2}
	v, err := New(Config{Opener: &fakeOpener{handles: map[string]*fakeHandle{"a.pdf": a, "b.pdf": b}}})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if err := v.Load(context.Background(), "a.pdf"); err != nil {
		t.Fatal(err)
	}
	v.JumpTo(4)
	v.Next()
	v.renders.Wait()

	if err := v.Load(context.Background(), "b.pdf"); err != nil {
		t.Fatal(err)
	}
	s := v.State()
	if s.TotalPages != 3 || s.Cursor != 0 || s.Flipping || s.Image != nil {
		t.Errorf("unexpected state after reload: %+v", s)
	}
	if !a.isClosed() {
		t.Error("previous document should be closed")
	}
}

func TestLoad_SupersededResultDiscarded(t *testing.T) {
	slow := &fakeHandle{pages: 9}
	fast := &fakeHandle{pages: 2}
	release := make(chan struct{})
	opener := &fakeOpener{
		handles: map[string]*fakeHandle{"slow.pdf": slow, "fast.pdf": fast},
		block:   map[string]chan struct{}{"slow.pdf": release},
		opening: make(chan string, 2),
	}
	v, err := New(Config{Opener: opener})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	slowErr := make(chan error, 1)
	go func() { slowErr <- v.Load(context.Background(), "slow.pdf") }()
	if ref := <-opener.opening; ref != "slow.pdf" {
		t.Fatalf("unexpected open of %s", ref)
	}

	if err := v.Load(context.Background(), "fast.pdf"); err != nil {
		t.Fatalf("fast load: %v", err)
	}
	close(release)

	if err := <-slowErr; !errors.Is(err, ErrSuperseded) {
		t.Errorf("slow load: expected ErrSuperseded, got %v", err)
	}
	if got := v.State().TotalPages; got != 3 {
		t.Errorf("TotalPages = %d, want 3 from the newer load", got)
	}
	if !slow.isClosed() {
		t.Error("discarded document should be closed")
	}
}

func TestCovers(t *testing.T) {
	v, err := New(Config{Opener: &fakeOpener{}})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if got := v.State().Cover.ID; got != "1" {
		t.Errorf("initial cover = %q, want 1", got)
	}
	if !v.SelectCover("3") || v.State().Cover.ID != "3" {
		t.Error("expected cover 3 to be selected")
	}
	if v.SelectCover("nope") {
		t.Error("unknown cover must be rejected")
	}
	if len(v.Covers()) != 4 {
		t.Errorf("expected 4 covers, got %d", len(v.Covers()))
	}
}

func TestCovers_DefaultWithoutImage(t *testing.T) {
	list := []models.Cover{
		{ID: "a", Title: "Linen", ImageRef: "/a.jpg"},
		{ID: "b", Title: "Plain", IsDefault: true},
	}
	v, err := New(Config{Opener: &fakeOpener{}, Covers: list})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if got := v.State().Cover.ID; got != "b" {
		t.Errorf("initial cover = %q, want the default cover b", got)
	}
	if got := v.Covers(); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("selectable covers = %+v, want only a", got)
	}
	if v.SelectCover("b") {
		t.Error("a cover without an image must not be selectable")
	}
	if !v.SelectCover("a") || v.State().Cover.ID != "a" {
		t.Error("expected cover a to be selected")
	}
}

func TestDrag_UpdatesPose(t *testing.T) {
	v := newLoaded(t, &fakeHandle{pages: 1})
	v.DragStart(Point{X: 100, Y: 100}, InputMouse)
	v.DragMove(Point{X: 110, Y: 100})
	s := v.State()
	if !s.Dragging {
		t.Error("expected dragging")
	}
	if want := InitialPose.Yaw + 3; math.Abs(s.Pose.Yaw-want) > 1e-9 {
		t.Errorf("yaw = %v, want %v", s.Pose.Yaw, want)
	}
	v.DragEnd()
	if v.State().Dragging {
		t.Error("expected drag to end")
	}
}

func TestClose(t *testing.T) {
	h := &fakeHandle{pages: 3}
	v := newLoaded(t, h)
	v.JumpTo(2)
	if err := v.Close(); err != nil {
		t.Fatal(err)
	}
	if !h.isClosed() {
		t.Error("document should be closed")
	}
	if err := v.Load(context.Background(), "doc.pdf"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
