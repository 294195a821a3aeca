// Package catalog builds the ordered page list shown by the viewer: a
// synthetic index page followed by one descriptor per source page.
package catalog

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/Lllllllleong/journalbook/internal/models"
	"golang.org/x/sync/errgroup"
)

// CommonDescription is shown under every page.
const CommonDescription = "In a world that teaches us to think fast but rarely to feel slow, The Echo Journal is your space to pause, reflect, and reconnect with yourself.\n\n" +
	"Rooted in the principles of Emotional Intelligence and the RULER framework (Recognizing, Understanding, Labeling, Expressing, and Regulating emotions), this journal is designed to turn emotional awareness into a daily habit."

// Source is what the builder needs from a document: how many pages it has and
// the text of each one.
type Source interface {
	PageCount() int
	Text(ctx context.Context, page int) (string, error)
}

// Options configures a build.
type Options struct {
	// IndexImage is the static image of the synthetic index page.
	IndexImage string

	// Concurrency bounds parallel text extraction (default: 4).
	Concurrency int

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// cycle is indexed by source page modulo 4.
var cycle = [4]models.Category{
	models.CategoryPrompts,
	models.CategoryExercises,
	models.CategoryReflections,
	models.CategoryIntroductions,
}

// CategoryFor returns the category of a source page.
func CategoryFor(sourcePage int) models.Category {
	i := sourcePage % len(cycle)
	if i < 0 {
		i += len(cycle)
	}
	return cycle[i]
}

// SourcePage maps a catalog page number to its source document page. The
// index page has no source page and maps to 0.
func SourcePage(pageNumber int) int {
	if pageNumber <= 1 {
		return 0
	}
	return pageNumber - 1
}

// Build walks src once and returns the catalog. A page whose text cannot be
// extracted gets empty content; only ctx cancellation fails the build. A nil
// src or an empty document yields the index page alone.
func Build(ctx context.Context, src Source, opts Options) ([]models.PageDescriptor, error) {
	opts.defaults()

	count := 0
	if src != nil {
		count = src.PageCount()
	}
	pages := make([]models.PageDescriptor, count+1)
	pages[0] = models.PageDescriptor{
		ID:          "1",
		PageNumber:  1,
		Title:       "Index",
		Description: CommonDescription,
		Category:    models.CategoryIntroduction,
		StaticImage: opts.IndexImage,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Concurrency)
	for i := 1; i <= count; i++ {
		sourcePage := i
		eg.Go(func() error {
			text, err := src.Text(gctx, sourcePage)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				opts.Logger.Warn("Text extraction failed, page will have no content.", "sourcePage", sourcePage, "error", err)
				text = ""
			}
			pages[sourcePage] = describe(sourcePage, text)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	opts.Logger.Info("Catalog built.", "sourcePages", count, "catalogPages", len(pages))
	return pages, nil
}

func describe(sourcePage int, text string) models.PageDescriptor {
	n := sourcePage + 1
	return models.PageDescriptor{
		ID:          strconv.Itoa(n),
		PageNumber:  n,
		Title:       "Page " + strconv.Itoa(n),
		Description: CommonDescription,
		Content:     text,
		Excerpt:     Excerpt(text),
		Category:    CategoryFor(sourcePage),
	}
}
