package omr

import (
	"image"
	"math"
	"strings"

	"omr-scanner/internal/settings"
	"omr-scanner/pkg/geometry"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// Unreadable marks an identification digit that could not be decided.
const Unreadable = '?'

// ReadIdentification reads the identification digits above the leftmost anchor marks.
// Each of the first DniDigits anchors left of DniMaxXRatio is a column; the DniRows
// cells above it span DniBandHeightRatio of the page, digit 0 on top. Columns without
// a dark enough cell read as '?', and a page with too few anchors reads as all '?'.
// Sampled rectangles are appended to debug when it is not nil.
func ReadIdentification(p *PreprocessedPage, s settings.Settings, debug *[]image.Rectangle) string {
	columns := SampleIdentification(p, s, debug)
	if columns == nil {
		return strings.Repeat(string(Unreadable), s.DniDigits)
	}

	var b strings.Builder
	for _, samples := range columns {
		b.WriteByte(decodeDigit(samples, s.DniIntensityThreshold, s.DniMultipleMargin))
	}
	return b.String()
}

// SampleIdentification returns the mean gray level of every identification cell, one
// slice of DniRows values per digit column. It returns nil when fewer than DniDigits
// anchors lie in the identification region.
func SampleIdentification(p *PreprocessedPage, s settings.Settings, debug *[]image.Rectangle) [][]float64 {
	width, height := p.Width(), p.Height()
	marks := anchorsInRange(p.Anchors, math.Inf(-1), float64(width)*s.DniMaxXRatio)
	if len(marks) < s.DniDigits {
		return nil
	}
	marks = marks[:s.DniDigits]

	band := s.DniBandHeightRatio * float64(height)
	yTop := math.Max(0, meanY(marks)-band)
	step := band / float64(s.DniRows)
	side := roiSide(s.DniRoiSizeRatio, height)

	columns := make([][]float64, len(marks))
	for c, mark := range marks {
		samples := make([]float64, s.DniRows)
		for row := range samples {
			cy := yTop + (float64(row)+0.5)*step
			roi := geometry.CenteredSquare(mark.Center.X, cy, side, width, height)
			samples[row] = meanIntensity(p.Gray, roi)
			if debug != nil {
				*debug = append(*debug, roi.ImageRect())
			}
		}
		columns[c] = samples
	}
	return columns
}

// decodeDigit picks the darkest row. It must not be lighter than threshold and, when
// margin is positive, the runner-up must be at least margin lighter.
func decodeDigit(samples []float64, threshold, margin float64) byte {
	best, second := -1, -1
	for i, v := range samples {
		switch {
		case best < 0 || v < samples[best]:
			best, second = i, best
		case second < 0 || v < samples[second]:
			second = i
		}
	}
	if best < 0 || samples[best] > threshold || best > 9 {
		return Unreadable
	}
	if margin > 0 && second >= 0 && samples[second]-samples[best] < margin {
		return Unreadable
	}
	return byte('0' + best)
}

// meanIntensity is the mean gray level (0-255) inside roi.
func meanIntensity(gray gocv.Mat, roi geometry.RectInt) float64 {
	region := gray.Region(roi.ImageRect())
	defer region.Close()
	return region.Mean().Val1
}

// roiSide converts a page height ratio into a sampling square side of at least 5 px.
func roiSide(ratio float64, height int) int {
	return max(5, int(math.Round(ratio*float64(height))))
}

func meanY(marks []AnchorMark) float64 {
	ys := make([]float64, len(marks))
	for i, m := range marks {
		ys[i] = m.Center.Y
	}
	return stat.Mean(ys, nil)
}
