package settings

import "omr-scanner/pkg/geometry"

// AnswerColumn is one column of questions in the fixed-ratio template.
type AnswerColumn struct {
	StartQuestion int                     `yaml:"start_question"`
	Questions     int                     `yaml:"questions"`
	Region        geometry.NormalizedRect `yaml:"region"`
}

// Template is the fixed-ratio layout used when Mode is ModeTemplate. Regions are
// normalized page rectangles and cells are found by dividing them evenly, so it only
// fits the sheet it was measured on.
type Template struct {
	DniRegion          geometry.NormalizedRect `yaml:"dni_region"`
	DniDigits          int                     `yaml:"dni_digits"`
	DniRows            int                     `yaml:"dni_rows"`
	AnswerColumns      []AnswerColumn          `yaml:"answer_columns"`
	OptionsPerQuestion int                     `yaml:"options_per_question"`
	SelectionThreshold float64                 `yaml:"selection_threshold"` // Min ink fill (0-1) to select an option
	AmbiguityMargin    float64                 `yaml:"ambiguity_margin"`    // Min fill gap between best and runner-up
	DniThreshold       float64                 `yaml:"dni_threshold"`
	DniMargin          float64                 `yaml:"dni_margin"`
}

// DefaultTemplate returns the rectangles of the academy sheet: the identification
// bubbles on the left (handwriting boxes excluded) and four columns of 20 questions.
func DefaultTemplate() Template {
	column := func(start int, x float64) AnswerColumn {
		return AnswerColumn{
			StartQuestion: start,
			Questions:     20,
			Region:        geometry.NormalizedRect{X: x, Y: 0.16, Width: 0.13, Height: 0.70},
		}
	}
	return Template{
		DniRegion: geometry.NormalizedRect{X: 0.055, Y: 0.23, Width: 0.24, Height: 0.34},
		DniDigits: 8,
		DniRows:   10,
		AnswerColumns: []AnswerColumn{
			column(1, 0.335),
			column(21, 0.480),
			column(41, 0.625),
			column(61, 0.770),
		},
		OptionsPerQuestion: 5,
		SelectionThreshold: 0.25,
		AmbiguityMargin:    0.08,
		DniThreshold:       0.15,
		DniMargin:          0.02,
	}
}

// TotalQuestions returns the number of questions across all template columns.
func (t Template) TotalQuestions() int {
	total := 0
	for _, c := range t.AnswerColumns {
		total += c.Questions
	}
	return total
}

// Validate checks the template rectangles and thresholds.
func (t Template) Validate() error {
	if !t.DniRegion.Valid() {
		return invalid("template dni region %+v is outside the page", t.DniRegion)
	}
	if t.DniDigits <= 0 || t.DniRows <= 0 {
		return invalid("template dni digits and rows must be positive")
	}
	if t.OptionsPerQuestion <= 0 || t.OptionsPerQuestion > 26 {
		return invalid("template options per question must be between 1 and 26, got %d", t.OptionsPerQuestion)
	}
	if len(t.AnswerColumns) == 0 {
		return invalid("template needs at least one answer column")
	}
	blocks := make([]QuestionBlock, 0, len(t.AnswerColumns))
	for i, c := range t.AnswerColumns {
		if !c.Region.Valid() {
			return invalid("template answer column %d region %+v is outside the page", i, c.Region)
		}
		blocks = append(blocks, QuestionBlock{StartQuestion: c.StartQuestion, QuestionCount: c.Questions, HeightRatio: 1})
	}
	for _, v := range []float64{t.SelectionThreshold, t.DniThreshold} {
		if v <= 0 || v > 1 {
			return invalid("template fill thresholds must be in (0, 1], got %g", v)
		}
	}
	if t.AmbiguityMargin < 0 || t.DniMargin < 0 {
		return invalid("template margins must not be negative")
	}
	return validateBlocks(blocks)
}
