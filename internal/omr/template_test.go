package omr

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"omr-scanner/internal/settings"
	"omr-scanner/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	templateWidth  = 1000
	templateHeight = 1400
)

func fillCell(img *image.Gray, cell geometry.RectInt) {
	draw.Draw(img, cell.ImageRect(), image.NewUniform(color.Gray{Y: 0}), image.Point{}, draw.Src)
}

func templateSheet() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, templateWidth, templateHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	return img
}

func TestTemplateMode(t *testing.T) {
	s := settings.Default()
	s.Mode = settings.ModeTemplate
	tpl := s.Template

	img := templateSheet()
	dni := tpl.DniRegion.ToPixels(templateWidth, templateHeight)
	fillCell(img, gridCell(dni, 0, tpl.DniDigits, 3, tpl.DniRows))
	fillCell(img, gridCell(dni, 1, tpl.DniDigits, 8, tpl.DniRows))

	col := tpl.AnswerColumns[0].Region.ToPixels(templateWidth, templateHeight)
	q := tpl.AnswerColumns[0].Questions
	// question 1: B
	fillCell(img, gridCell(col, 1, tpl.OptionsPerQuestion, 0, q))
	// question 2: A and B
	fillCell(img, gridCell(col, 0, tpl.OptionsPerQuestion, 1, q))
	fillCell(img, gridCell(col, 1, tpl.OptionsPerQuestion, 1, q))

	last := tpl.AnswerColumns[3]
	lastCol := last.Region.ToPixels(templateWidth, templateHeight)
	fillCell(img, gridCell(lastCol, 4, tpl.OptionsPerQuestion, last.Questions-1, last.Questions))

	result, err := newTestProcessor(t, s).ProcessPage(context.Background(), toPage(img), 2)
	require.NoError(t, err)

	assert.Equal(t, "38??????", result.Identification)
	require.Len(t, result.Answers, tpl.TotalQuestions())
	assert.Zero(t, result.Anchors)

	assert.Equal(t, Valid, result.Answers[0].State)
	assert.Equal(t, "B", result.Answers[0].Option)
	assert.Greater(t, result.Answers[0].Confidence, 0.5)

	assert.Equal(t, Multiple, result.Answers[1].State)
	assert.Empty(t, result.Answers[1].Option)

	final := result.Answers[len(result.Answers)-1]
	assert.Equal(t, 80, final.Question)
	assert.Equal(t, Valid, final.State)
	assert.Equal(t, "E", final.Option)

	for _, a := range result.Answers[2 : len(result.Answers)-1] {
		assert.Equal(t, Blank, a.State, "question %d", a.Question)
	}
}

func TestGridCellStaysInsideRegion(t *testing.T) {
	region := geometry.RectInt{X: 10, Y: 20, Width: 7, Height: 3}
	for c := 0; c < 5; c++ {
		for r := 0; r < 10; r++ {
			cell := gridCell(region, c, 5, r, 10)
			assert.GreaterOrEqual(t, cell.X, region.X)
			assert.GreaterOrEqual(t, cell.Y, region.Y)
			assert.LessOrEqual(t, cell.X+cell.Width, region.X+region.Width)
			assert.LessOrEqual(t, cell.Y+cell.Height, region.Y+region.Height)
			assert.Positive(t, cell.Area())
		}
	}
}

func TestTopTwo(t *testing.T) {
	best, second := topTwo([]float64{0.1, 0.7, 0.3, 0.65})
	assert.Equal(t, 1, best)
	assert.InDelta(t, 0.65, second, 1e-9)

	best, second = topTwo([]float64{0.9, 0.2})
	assert.Equal(t, 0, best)
	assert.InDelta(t, 0.2, second, 1e-9)

	best, _ = topTwo(nil)
	assert.Equal(t, -1, best)
}
