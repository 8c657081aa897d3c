package omr

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preprocessSheet(t *testing.T, img *image.Gray) *PreprocessedPage {
	t.Helper()
	p, err := Preprocess(toPage(img), testSettings())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestSampleIdentification(t *testing.T) {
	sheet := fullSheet()
	markDigit(sheet, 2, 7, 0)
	markDigit(sheet, 5, 0, 90)
	p := preprocessSheet(t, sheet)
	s := testSettings()

	var rects []image.Rectangle
	columns := SampleIdentification(p, s, &rects)
	require.Len(t, columns, s.DniDigits)
	assert.Len(t, rects, s.DniDigits*s.DniRows)

	for c, samples := range columns {
		require.Len(t, samples, s.DniRows)
		for row, v := range samples {
			switch {
			case c == 2 && row == 7:
				assert.Less(t, v, 10.0)
			case c == 5 && row == 0:
				assert.InDelta(t, 90, v, 10)
			default:
				assert.Greater(t, v, 245.0, "column %d row %d", c, row)
			}
		}
	}
	assert.Equal(t, "??7??0??", ReadIdentification(p, s, nil))
}

func TestSampleIdentificationTooFewAnchors(t *testing.T) {
	sheet := newSheet()
	drawDniAnchors(sheet, 5)
	p := preprocessSheet(t, sheet)

	var rects []image.Rectangle
	assert.Nil(t, SampleIdentification(p, testSettings(), &rects))
	assert.Empty(t, rects)
}

func TestSampleAnswers(t *testing.T) {
	sheet := newSheet()
	drawDniAnchors(sheet, 8)
	drawAnswerAnchors(sheet, 0, 5)
	drawAnswerAnchors(sheet, 1, 4)
	drawAnswerAnchors(sheet, 2, 5)
	markOption(sheet, 2, 3, 1, 0)
	p := preprocessSheet(t, sheet)
	s := testSettings()

	var rects []image.Rectangle
	questions := SampleAnswers(p, s, &rects)
	require.Len(t, questions, s.TotalQuestions())
	assert.Len(t, rects, 20*s.OptionsPerQuestion)

	for i, q := range questions {
		assert.Equal(t, i+1, q.Question)
		if q.Question >= 11 && q.Question <= 20 {
			assert.Nil(t, q.Samples, "question %d", q.Question)
			continue
		}
		require.Len(t, q.Samples, s.OptionsPerQuestion)
	}
	assert.Less(t, questions[23].Samples[1], 10.0)
	assert.Greater(t, questions[23].Samples[0], 245.0)
}
