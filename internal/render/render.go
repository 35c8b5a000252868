// Package render draws the equipment report: five PNG charts rasterized with
// gg and laid out with summary tables in a PDF.
//
// Output depends only on the inputs to Render. Chart order is fixed, types
// are sorted, and the PDF dates are pinned to the generation time.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"golang.org/x/sync/errgroup"
)

// Default chart raster size in pixels.
const (
	DefaultChartWidth  = 1200
	DefaultChartHeight = 720
)

// Options configures a Renderer.
type Options struct {
	// FontPath points at a TrueType font for chart text. Empty uses the
	// built-in bitmap face.
	FontPath    string
	ChartWidth  int
	ChartHeight int
}

// Renderer implements core.Renderer.
type Renderer struct {
	fonts         *fontSet
	width, height int
}

var _ core.Renderer = (*Renderer)(nil)

// New creates a Renderer, loading the chart font if one is configured.
func New(opts Options) (*Renderer, error) {
	fonts, err := loadFontSet(opts.FontPath)
	if err != nil {
		return nil, fmt.Errorf("load chart font: %w", err)
	}

	width, height := opts.ChartWidth, opts.ChartHeight
	if width <= 0 {
		width = DefaultChartWidth
	}
	if height <= 0 {
		height = DefaultChartHeight
	}

	if opts.FontPath != "" {
		slog.Info("loaded chart font", "path", opts.FontPath)
	}
	return &Renderer{fonts: fonts, width: width, height: height}, nil
}

// Render produces the report PDF for one dataset.
func (r *Renderer) Render(ctx context.Context, datasetName string, generatedAt time.Time, summary core.Summary) ([]byte, error) {
	images, err := r.Charts(ctx, summary)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return buildPDF(datasetName, generatedAt, summary, images)
}

// Charts rasterizes every report chart concurrently and returns the PNGs in
// report order.
func (r *Renderer) Charts(ctx context.Context, summary core.Summary) ([][]byte, error) {
	images := make([][]byte, len(charts))

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range charts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c := newCanvas(r.width, r.height, r.fonts)
			ch.draw(c, summary)
			png, err := c.png()
			if err != nil {
				return fmt.Errorf("chart %s: %w", ch.Name, err)
			}
			images[i] = png
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}
