package omr

import (
	"image"
	"math"
	"strings"

	"omr-scanner/internal/page"
	"omr-scanner/internal/settings"
	"omr-scanner/pkg/geometry"

	"gocv.io/x/gocv"
)

// PreprocessTemplate binarizes the page for the fixed-ratio template reader. It does
// not look for anchors and never rotates.
func PreprocessTemplate(img page.Image) (*PreprocessedPage, error) {
	bgr, err := ensureColor(img)
	if err != nil {
		return nil, err
	}
	gray, binary := binarize(bgr)
	return &PreprocessedPage{Color: bgr, Gray: gray, Binary: binary}, nil
}

// ReadTemplateIdentification reads the identification grid from the template's fixed
// region, one column per digit. A column reads '?' unless its fullest cell reaches
// DniThreshold and beats the runner-up by DniMargin.
func ReadTemplateIdentification(p *PreprocessedPage, t settings.Template, debug *[]image.Rectangle) string {
	region := t.DniRegion.ToPixels(p.Width(), p.Height())

	var b strings.Builder
	fills := make([]float64, t.DniRows)
	for col := 0; col < t.DniDigits; col++ {
		for row := range fills {
			cell := gridCell(region, col, t.DniDigits, row, t.DniRows)
			fills[row] = fillLevel(p.Binary, cell)
			if debug != nil {
				*debug = append(*debug, cell.ImageRect())
			}
		}
		best, second := topTwo(fills)
		if best < 0 || best > 9 || fills[best] < t.DniThreshold || fills[best]-second < t.DniMargin {
			b.WriteByte(Unreadable)
			continue
		}
		b.WriteByte(byte('0' + best))
	}
	return b.String()
}

// ReadTemplateAnswers reads every template column, rows split evenly per question and
// cells split evenly per option.
func ReadTemplateAnswers(p *PreprocessedPage, t settings.Template, debug *[]image.Rectangle) []AnswerResult {
	results := make([]AnswerResult, 0, t.TotalQuestions())
	fills := make([]float64, t.OptionsPerQuestion)
	for _, column := range t.AnswerColumns {
		region := column.Region.ToPixels(p.Width(), p.Height())
		for q := 0; q < column.Questions; q++ {
			for o := range fills {
				cell := gridCell(region, o, t.OptionsPerQuestion, q, column.Questions)
				fills[o] = fillLevel(p.Binary, cell)
				if debug != nil {
					*debug = append(*debug, cell.ImageRect())
				}
			}

			best, second := topTwo(fills)
			question := column.StartQuestion + q
			switch {
			case best < 0 || fills[best] < t.SelectionThreshold:
				results = append(results, newAnswer(question, Blank, -1, 0))
			case fills[best]-second < t.AmbiguityMargin:
				results = append(results, newAnswer(question, Multiple, -1, 0))
			default:
				results = append(results, newAnswer(question, Valid, best, math.Min(1, fills[best])))
			}
		}
	}
	return results
}

// topTwo returns the index of the largest value and the second largest value.
func topTwo(values []float64) (int, float64) {
	best, second := -1, 0.0
	for i, v := range values {
		switch {
		case best < 0 || v > values[best]:
			if best >= 0 {
				second = values[best]
			}
			best = i
		case v > second:
			second = v
		}
	}
	return best, second
}

// gridCell returns cell (col, row) of region divided into cols x rows equal parts.
func gridCell(region geometry.RectInt, col, cols, row, rows int) geometry.RectInt {
	cw := max(1, region.Width/cols)
	rh := max(1, region.Height/rows)
	x := region.X + min(region.Width-1, col*cw)
	y := region.Y + min(region.Height-1, row*rh)
	return geometry.RectInt{
		X:      x,
		Y:      y,
		Width:  max(1, min(cw, region.X+region.Width-x)),
		Height: max(1, min(rh, region.Y+region.Height-y)),
	}
}

// fillLevel is the fraction of ink pixels inside cell.
func fillLevel(binary gocv.Mat, cell geometry.RectInt) float64 {
	if cell.Area() == 0 {
		return 0
	}
	region := binary.Region(cell.ImageRect())
	defer region.Close()
	return float64(gocv.CountNonZero(region)) / float64(cell.Area())
}
