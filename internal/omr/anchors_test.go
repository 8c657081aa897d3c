package omr

import (
	"image"
	"math"
	"testing"

	"omr-scanner/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAnchorsFiltersShapes(t *testing.T) {
	s := testSettings()
	img := newSheet()
	fillCentered(img, 300, 1504, markWidth, markHeight, 0) // anchor
	fillCentered(img, 100, 1504, markWidth, markHeight, 0) // anchor
	fillCentered(img, 500, 1504, 4, 2, 0)                  // too small
	fillCentered(img, 600, 1504, 20, 20, 0)                // square
	fillCentered(img, 800, 1504, 240, 8, 0)                // too elongated
	fillCentered(img, 300, 300, markWidth, markHeight, 0)  // above the band
	fillCentered(img, 1000, 1450, 240, 80, 0)              // too large

	p, err := Preprocess(toPage(img), s)
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Anchors, 2)
	assert.InDelta(t, 100, p.Anchors[0].Center.X, 1)
	assert.InDelta(t, 300, p.Anchors[1].Center.X, 1)

	pageArea := float64(sheetWidth * sheetHeight)
	bandTop := float64(sheetHeight) * (1 - s.BottomMarkBandHeightRatio)
	for _, a := range p.Anchors {
		area := float64(a.Area)
		assert.GreaterOrEqual(t, area, s.MinBottomMarkAreaRatio*pageArea)
		assert.LessOrEqual(t, area, s.MaxBottomMarkAreaRatio*pageArea)
		assert.GreaterOrEqual(t, a.Bounds.Aspect(), s.MinBottomMarkAspectRatio)
		assert.LessOrEqual(t, a.Bounds.Aspect(), s.MaxBottomMarkAspectRatio)
		assert.GreaterOrEqual(t, float64(a.Bounds.Y), bandTop)
	}
}

func TestDetectAnchorsOnFullSheet(t *testing.T) {
	p, err := Preprocess(toPage(fullSheet()), testSettings())
	require.NoError(t, err)
	defer p.Close()

	require.Len(t, p.Anchors, 8+15)
	for i := 1; i < len(p.Anchors); i++ {
		assert.Less(t, p.Anchors[i-1].Center.X, p.Anchors[i].Center.X)
	}
	assert.False(t, p.Rotated)
	assert.InDelta(t, 0, p.SkewDegrees, 0.01)
}

func TestDetectAnchorsEmptyInput(t *testing.T) {
	p, err := Preprocess(toPage(newSheet()), testSettings())
	require.NoError(t, err)
	defer p.Close()
	assert.Empty(t, p.Anchors)

	assert.Empty(t, DetectAnchors(p.Binary, image.Point{}, testSettings()))
}

func TestAnchorsInRange(t *testing.T) {
	mk := func(x float64) AnchorMark { return AnchorMark{Center: geometry.Point2D{X: x}} }
	anchors := []AnchorMark{mk(10), mk(50), mk(90)}

	assert.Len(t, anchorsInRange(anchors, math.Inf(-1), 50), 2)
	assert.Len(t, anchorsInRange(anchors, 50, math.Inf(1)), 2)
	assert.Empty(t, anchorsInRange(anchors, 100, 200))
}
