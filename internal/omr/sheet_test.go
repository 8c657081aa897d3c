package omr

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"omr-scanner/internal/page"
	"omr-scanner/internal/settings"

	"github.com/stretchr/testify/require"
)

// Synthetic sheet geometry. Anchors are 24x8 marks whose centers sit on y = 1504;
// identification anchors are 40 px apart from x = 40, answer blocks hold five anchors
// 36 px apart and start every 244 px from x = 462.
const (
	sheetWidth  = 1200
	sheetHeight = 1600
	markWidth   = 24
	markHeight  = 8
	markCenterY = 1504
	bubbleSize  = 24
)

func testSettings() settings.Settings {
	s := settings.Default()
	s.MinBottomMarkAreaRatio = 0.00008
	s.DniBandHeightRatio = 0.3
	s.AnswerBlockSplitGapRatio = 0.05
	s.QuestionBlocks = []settings.QuestionBlock{
		{StartQuestion: 1, QuestionCount: 10, HeightRatio: 0.5},
		{StartQuestion: 11, QuestionCount: 10, HeightRatio: 0.5},
		{StartQuestion: 21, QuestionCount: 10, HeightRatio: 0.5},
	}
	return s
}

func dniX(column int) int { return 40 + 40*column }
func answerX(block, option int) int { return 462 + 244*block + 36*option }

// dniY is the center of a digit row: the band of 0.3*1600 px above the anchors split in ten.
func dniY(digit int) int { return 1048 + 48*digit }

// answerY is the center of a question row: 0.5*1600 px above the anchors split in ten.
func answerY(question int) int { return 744 + 80*question }

func newSheet() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, sheetWidth, sheetHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)
	return img
}

func fillCentered(img *image.Gray, cx, cy, w, h int, level uint8) {
	r := image.Rect(cx-w/2, cy-h/2, cx-w/2+w, cy-h/2+h)
	draw.Draw(img, r, image.NewUniform(color.Gray{Y: level}), image.Point{}, draw.Src)
}

func drawDniAnchors(img *image.Gray, count int) {
	for c := 0; c < count; c++ {
		fillCentered(img, dniX(c), markCenterY, markWidth, markHeight, 0)
	}
}

func drawAnswerAnchors(img *image.Gray, block, count int) {
	for o := 0; o < count; o++ {
		fillCentered(img, answerX(block, o), markCenterY, markWidth, markHeight, 0)
	}
}

func markDigit(img *image.Gray, column, digit int, level uint8) {
	fillCentered(img, dniX(column), dniY(digit), bubbleSize, bubbleSize, level)
}

func markOption(img *image.Gray, block, question, option int, level uint8) {
	fillCentered(img, answerX(block, option), answerY(question), bubbleSize, bubbleSize, level)
}

// fullSheet draws every anchor of the test layout.
func fullSheet() *image.Gray {
	img := newSheet()
	drawDniAnchors(img, 8)
	for b := 0; b < 3; b++ {
		drawAnswerAnchors(img, b, 5)
	}
	return img
}

func newTestProcessor(t *testing.T, s settings.Settings, opts ...Option) *Processor {
	t.Helper()
	p, err := NewProcessor(s, opts...)
	require.NoError(t, err)
	return p
}

func toPage(img image.Image) page.Image {
	return page.FromImage(img)
}
