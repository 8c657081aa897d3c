package omr

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
)

// DebugCategory names the overlay written for one page.
type DebugCategory string

const (
	DebugIdentification DebugCategory = "identification"
	DebugAnswers        DebugCategory = "answers"
	DebugAnchors        DebugCategory = "anchors"
)

// DebugExporter receives the sampled regions of a page. The processor ignores its
// errors and recovers its panics; the result of a page never depends on it.
type DebugExporter interface {
	Export(page gocv.Mat, regions []image.Rectangle, pageNumber int, category DebugCategory) error
}

// FileExporter draws the regions on a copy of the page and writes
// <Dir>/<category>/<category>_page_NNN.png.
type FileExporter struct {
	Dir string
}

var overlayColor = color.RGBA{G: 255, A: 255}

// Export implements DebugExporter.
func (e FileExporter) Export(page gocv.Mat, regions []image.Rectangle, pageNumber int, category DebugCategory) error {
	if e.Dir == "" {
		return fmt.Errorf("debug directory not set")
	}
	if page.Empty() {
		return fmt.Errorf("empty page")
	}

	dir := filepath.Join(e.Dir, string(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	overlay := page.Clone()
	defer overlay.Close()
	for _, r := range regions {
		gocv.Rectangle(&overlay, r, overlayColor, 2)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_page_%03d.png", category, pageNumber))
	if !gocv.IMWrite(path, overlay) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
