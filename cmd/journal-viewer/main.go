package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/journalbook/internal/gcp"
	"github.com/Lllllllleong/journalbook/internal/services"
)

var (
	viewerInstance *services.ViewerService
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleViewer", handleViewer)
	functions.CloudEvent("ReloadDocument", reloadDocument)
}

// main serves the registered functions locally. Set FUNCTION_TARGET=HandleViewer
// so the viewer routes are served from the root path.
func main() {
	port := gcp.GetEnv("PORT", "8080")
	if err := funcframework.Start(port); err != nil {
		slog.Error("Function framework exited.", "error", err)
		os.Exit(1)
	}
}

func service() (*services.ViewerService, error) {
	once.Do(func() {
		viewerInstance, initErr = services.NewViewerService(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return viewerInstance, initErr
}

func handleViewer(w http.ResponseWriter, r *http.Request) {
	s, err := service()
	if err != nil {
		http.Error(w, "Internal Server Error: service unavailable", http.StatusInternalServerError)
		return
	}
	s.ServeHTTP(w, r)
}

func reloadDocument(ctx context.Context, e cloudevents.Event) error {
	s, err := service()
	if err != nil {
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return s.Process(ctx, gcsEvent)
}
