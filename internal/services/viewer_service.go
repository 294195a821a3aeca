package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/journalbook/internal/covers"
	"github.com/Lllllllleong/journalbook/internal/document"
	"github.com/Lllllllleong/journalbook/internal/gcp"
	"github.com/Lllllllleong/journalbook/internal/models"
	"github.com/Lllllllleong/journalbook/internal/viewer"
)

// ViewerConfig holds all configuration for the viewer service.
type ViewerConfig struct {
	DocumentRef      string
	IndexImage       string
	RenderScale      float64
	FlipDuration     time.Duration
	BuildConcurrency int
	CoversFile       string
	WatchBucket      string
	StorageEnabled   bool
	StorageEndpoint  string
	ProjectID        string
	VertexAIRegion   string
}

// ViewerService exposes one viewer to the presentation layer over HTTP and
// reloads it on storage events.
type ViewerService struct {
	viewer  *viewer.Viewer
	storage *gcp.Storage
	vertex  *gcp.VertexClient
	config  ViewerConfig
	router  chi.Router

	timerMu   sync.Mutex
	flipTimer *time.Timer
}

// GCSEvent is the payload of a GCS object event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// loadConfig loads and validates all environment variables for this service.
func loadConfig() (*ViewerConfig, error) {
	scale, err := strconv.ParseFloat(gcp.GetEnv("RENDER_SCALE", "1.5"), 64)
	if err != nil || scale <= 0 {
		return nil, fmt.Errorf("RENDER_SCALE must be a positive number")
	}
	flip, err := time.ParseDuration(gcp.GetEnv("FLIP_DURATION", "800ms"))
	if err != nil || flip < 0 {
		return nil, fmt.Errorf("FLIP_DURATION must be a non-negative duration")
	}
	concurrency, err := strconv.Atoi(gcp.GetEnv("BUILD_CONCURRENCY", "4"))
	if err != nil || concurrency <= 0 {
		return nil, fmt.Errorf("BUILD_CONCURRENCY must be a positive integer")
	}

	ref := gcp.GetEnv("DOCUMENT_REF", "my-journal.pdf")
	return &ViewerConfig{
		DocumentRef:      ref,
		IndexImage:       gcp.GetEnv("INDEX_IMAGE", "/index_page.jpg"),
		RenderScale:      scale,
		FlipDuration:     flip,
		BuildConcurrency: concurrency,
		CoversFile:       gcp.GetEnv("COVERS_FILE", ""),
		WatchBucket:      gcp.GetEnv("WATCH_BUCKET", ""),
		StorageEnabled:   strings.HasPrefix(ref, "gs://") || gcp.GetEnv("STORAGE_ENABLED", "false") == "true",
		StorageEndpoint:  gcp.GetEnv("STORAGE_ENDPOINT", ""),
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		VertexAIRegion:   gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
	}, nil
}

// NewViewerService wires clients, opens the configured document and returns
// the service. A document that fails to open is logged and leaves the viewer
// with the index page only.
func NewViewerService(ctx context.Context) (*ViewerService, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	pdfConfig := document.PDFConfig{}
	var storage *gcp.Storage
	if config.StorageEnabled {
		storage, err = gcp.NewStorage(ctx, config.StorageEndpoint)
		if err != nil {
			return nil, err
		}
		pdfConfig.Objects = storage
	}
	var vertex *gcp.VertexClient
	if config.ProjectID != "" {
		vertex, err = gcp.NewVertexClient(ctx, config.ProjectID, config.VertexAIRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		pdfConfig.Fallback = vertex
	}

	list := covers.Default()
	if config.CoversFile != "" {
		list, err = covers.Load(config.CoversFile)
		if err != nil {
			return nil, err
		}
	}

	s, err := newViewerService(*config, document.NewPDFOpener(pdfConfig), list)
	if err != nil {
		return nil, err
	}
	s.storage, s.vertex = storage, vertex

	if err := s.viewer.Load(ctx, config.DocumentRef); err != nil {
		slog.Error("Initial document load failed.", "ref", config.DocumentRef, "error", err)
	}
	slog.Info("Viewer service initialized.", "documentRef", config.DocumentRef, "vertexFallback", vertex != nil)
	return s, nil
}

func newViewerService(config ViewerConfig, opener document.Opener, list []models.Cover) (*ViewerService, error) {
	v, err := viewer.New(viewer.Config{
		Opener:           opener,
		IndexImage:       config.IndexImage,
		RenderScale:      config.RenderScale,
		BuildConcurrency: config.BuildConcurrency,
		Covers:           list,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create viewer: %w", err)
	}
	s := &ViewerService{viewer: v, config: config}
	s.router = s.routes()
	return s, nil
}

func (s *ViewerService) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/state", s.handleState)
	r.Post("/next", s.handleNext)
	r.Post("/prev", s.handlePrev)
	r.Post("/jump", s.handleJump)
	r.Post("/flip-done", s.handleFlipDone)
	r.Route("/drag", func(r chi.Router) {
		r.Post("/start", s.handleDragStart)
		r.Post("/move", s.handleDragMove)
		r.Post("/end", s.handleDragEnd)
	})
	r.Get("/covers", s.handleCovers)
	r.Post("/cover", s.handleCover)
	r.Get("/page/image", s.handlePageImage)
	r.Post("/reload", s.handleReload)
	return r
}

// ServeHTTP makes the service usable as an HTTP function.
func (s *ViewerService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *ViewerService) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, true)
}

func (s *ViewerService) handleNext(w http.ResponseWriter, r *http.Request) {
	if s.viewer.Next() {
		s.armFlipTimer()
	}
	s.writeState(w, false)
}

func (s *ViewerService) handlePrev(w http.ResponseWriter, r *http.Request) {
	if s.viewer.Prev() {
		s.armFlipTimer()
	}
	s.writeState(w, false)
}

func (s *ViewerService) handleJump(w http.ResponseWriter, r *http.Request) {
	var req models.JumpRequest
	if !decode(w, r, &req) {
		return
	}
	s.viewer.JumpTo(req.Target)
	s.writeState(w, true)
}

func (s *ViewerService) handleFlipDone(w http.ResponseWriter, r *http.Request) {
	s.stopFlipTimer()
	s.viewer.FlipDone()
	s.writeState(w, false)
}

func (s *ViewerService) handleDragStart(w http.ResponseWriter, r *http.Request) {
	var req models.DragRequest
	if !decode(w, r, &req) {
		return
	}
	s.viewer.DragStart(viewer.Point{X: req.X, Y: req.Y}, viewer.ParseInput(req.Input))
	s.writeState(w, false)
}

func (s *ViewerService) handleDragMove(w http.ResponseWriter, r *http.Request) {
	var req models.DragRequest
	if !decode(w, r, &req) {
		return
	}
	s.viewer.DragMove(viewer.Point{X: req.X, Y: req.Y})
	s.writeState(w, false)
}

func (s *ViewerService) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	s.viewer.DragEnd()
	s.writeState(w, false)
}

func (s *ViewerService) handleCovers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.viewer.Covers())
}

func (s *ViewerService) handleCover(w http.ResponseWriter, r *http.Request) {
	var req models.CoverRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.viewer.SelectCover(req.ID) {
		http.Error(w, "Not Found: unknown cover", http.StatusNotFound)
		return
	}
	s.writeState(w, true)
}

func (s *ViewerService) handlePageImage(w http.ResponseWriter, r *http.Request) {
	img := s.viewer.State().Image
	if img == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", img.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	if _, err := w.Write(img.Data); err != nil {
		slog.Warn("Failed to write page image.", "error", err)
	}
}

func (s *ViewerService) handleReload(w http.ResponseWriter, r *http.Request) {
	var req models.ReloadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Ref == "" {
		req.Ref = s.config.DocumentRef
	}
	if !s.allowedRef(req.Ref) {
		slog.Warn("Rejected reload of a document outside the configured sources.", "ref", req.Ref)
		writeJSON(w, http.StatusForbidden, models.ReloadResponse{
			Status:     "rejected",
			TotalPages: s.viewer.State().TotalPages,
			Error:      "document reference not allowed",
		})
		return
	}
	s.stopFlipTimer()

	err := s.viewer.Load(r.Context(), req.Ref)
	res := models.ReloadResponse{Status: "success", TotalPages: s.viewer.State().TotalPages}
	code := http.StatusOK
	var openErr *document.OpenError
	switch {
	case err == nil:
	case errors.Is(err, viewer.ErrSuperseded):
		res.Status, res.Error, code = "superseded", "load superseded by a newer one", http.StatusConflict
	case errors.As(err, &openErr):
		res.Status, res.Error, code = "degraded", "document could not be opened", http.StatusBadGateway
	default:
		res.Status, res.Error, code = "failed", "document load failed", http.StatusInternalServerError
	}
	writeJSON(w, code, res)
}

// allowedRef reports whether a client may load ref: the configured document,
// or a PDF in the watched bucket.
func (s *ViewerService) allowedRef(ref string) bool {
	if ref == s.config.DocumentRef {
		return true
	}
	if s.config.WatchBucket == "" {
		return false
	}
	object, ok := strings.CutPrefix(ref, "gs://"+s.config.WatchBucket+"/")
	return ok && object != "" && strings.EqualFold(path.Ext(object), ".pdf")
}

// Process reloads the viewer when a PDF lands in storage. Other objects are
// ignored.
func (s *ViewerService) Process(ctx context.Context, gcsEvent GCSEvent) error {
	logCtx := slog.With("gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name)

	if !strings.EqualFold(path.Ext(gcsEvent.Name), ".pdf") {
		logCtx.Info("Ignoring non-PDF object.")
		return nil
	}
	if s.config.WatchBucket != "" && gcsEvent.Bucket != s.config.WatchBucket {
		logCtx.Info("Ignoring object outside the watched bucket.", "watchBucket", s.config.WatchBucket)
		return nil
	}

	s.stopFlipTimer()
	ref := fmt.Sprintf("gs://%s/%s", gcsEvent.Bucket, gcsEvent.Name)
	if err := s.viewer.Load(ctx, ref); err != nil {
		if errors.Is(err, viewer.ErrSuperseded) {
			logCtx.Info("Reload superseded by a newer one.")
			return nil
		}
		return fmt.Errorf("reload %s: %w", ref, err)
	}
	logCtx.Info("Viewer reloaded from storage event.")
	return nil
}

// armFlipTimer ends the running flip after the animation duration. A client
// may end it earlier with /flip-done.
func (s *ViewerService) armFlipTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.flipTimer != nil {
		s.flipTimer.Stop()
	}
	s.flipTimer = time.AfterFunc(s.config.FlipDuration, s.viewer.FlipDone)
}

func (s *ViewerService) stopFlipTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.flipTimer != nil {
		s.flipTimer.Stop()
		s.flipTimer = nil
	}
}

// writeState reports the viewer state. The page image is inlined only when
// withImage is set; gesture and flip responses leave it to /page/image.
func (s *ViewerService) writeState(w http.ResponseWriter, withImage bool) {
	st := s.viewer.State()
	res := models.ViewerStateResponse{
		Cursor:     st.Cursor,
		TotalPages: st.TotalPages,
		Flipping:   st.Flipping,
		Page:       st.Page,
		Pose:       st.Pose,
		Dragging:   st.Dragging,
		Cover:      st.Cover,
	}
	if withImage && st.Image != nil {
		res.PageImage = st.Image.DataURL()
	}
	writeJSON(w, http.StatusOK, res)
}

// Close releases the viewer and the cloud clients.
func (s *ViewerService) Close() error {
	s.stopFlipTimer()
	err := s.viewer.Close()
	if s.vertex != nil {
		err = errors.Join(err, s.vertex.Close())
	}
	if s.storage != nil {
		err = errors.Join(err, s.storage.Close())
	}
	return err
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Warn("Could not decode request body.", "path", r.URL.Path, "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}
