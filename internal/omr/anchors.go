package omr

import (
	"image"
	"sort"

	"omr-scanner/internal/settings"
	"omr-scanner/pkg/geometry"

	"gocv.io/x/gocv"
)

// AnchorMark is one printed reference rectangle found in the bottom band of the sheet.
type AnchorMark struct {
	Bounds geometry.RectInt `json:"bounds"`
	Center geometry.Point2D `json:"center"`
	Area   int              `json:"area"`
}

// DetectAnchors returns the external ink components of binary whose bounding box
// matches the anchor mark filters of s, sorted left to right. size is the page size
// the area and band ratios refer to.
func DetectAnchors(binary gocv.Mat, size image.Point, s settings.Settings) []AnchorMark {
	if binary.Empty() || size.X <= 0 || size.Y <= 0 {
		return nil
	}

	contours := gocv.FindContours(binary, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	pageArea := float64(size.X) * float64(size.Y)
	minArea := s.MinBottomMarkAreaRatio * pageArea
	maxArea := s.MaxBottomMarkAreaRatio * pageArea
	bandTop := float64(size.Y) * (1 - s.BottomMarkBandHeightRatio)

	var anchors []AnchorMark
	for i := 0; i < contours.Size(); i++ {
		r := geometry.FromImageRect(gocv.BoundingRect(contours.At(i)))

		area := float64(r.Area())
		if area < minArea || area > maxArea {
			continue
		}
		if float64(r.Y) < bandTop {
			continue
		}
		aspect := r.Aspect()
		if aspect < s.MinBottomMarkAspectRatio || aspect > s.MaxBottomMarkAspectRatio {
			continue
		}

		anchors = append(anchors, AnchorMark{Bounds: r, Center: r.Center(), Area: r.Area()})
	}

	sortByX(anchors)
	return anchors
}

// sortByX orders anchors by center x, then y, so the result does not depend on
// contour order.
func sortByX(anchors []AnchorMark) {
	sort.SliceStable(anchors, func(i, j int) bool {
		if anchors[i].Center.X != anchors[j].Center.X {
			return anchors[i].Center.X < anchors[j].Center.X
		}
		return anchors[i].Center.Y < anchors[j].Center.Y
	})
}

// anchorsInRange returns the anchors whose center x lies within [minX, maxX].
func anchorsInRange(anchors []AnchorMark, minX, maxX float64) []AnchorMark {
	var out []AnchorMark
	for _, a := range anchors {
		if a.Center.X >= minX && a.Center.X <= maxX {
			out = append(out, a)
		}
	}
	return out
}

// AnchorRects returns the bounding boxes of anchors.
func AnchorRects(anchors []AnchorMark) []image.Rectangle {
	rects := make([]image.Rectangle, len(anchors))
	for i, a := range anchors {
		rects[i] = a.Bounds.ImageRect()
	}
	return rects
}
