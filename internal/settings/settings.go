// Package settings defines the answer sheet layout and recognition parameters.
//
// Calibrating a new sheet: DniBandHeightRatio is the vertical distance, on a reference
// scan, between the identification anchor marks and the top of the first bubble row,
// divided by the page height. Each QuestionBlock HeightRatio is measured the same way
// from the top of the block down to its option anchors. The intensity thresholds sit
// halfway between the mean gray level (0-255) of filled and of empty bubbles; the
// omrcalib command prints both.
package settings

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Mode selects how the sampling grid is located on the page.
type Mode string

const (
	ModeAnchors  Mode = "anchors"  // Grid derived from printed anchor marks
	ModeTemplate Mode = "template" // Fixed normalized rectangles, no anchor detection
)

// QuestionBlock describes one column of questions sharing an option anchor group.
type QuestionBlock struct {
	StartQuestion int     `yaml:"start_question" json:"start_question"`
	QuestionCount int     `yaml:"question_count" json:"question_count"`
	HeightRatio   float64 `yaml:"height_ratio" json:"height_ratio"` // Block height / page height
}

// Settings holds every tunable of the recognition pipeline. It is read-only once loaded.
type Settings struct {
	Mode Mode `yaml:"mode"`

	// Identification grid
	DniDigits             int     `yaml:"dni_digits"`
	DniRows               int     `yaml:"dni_rows"`
	DniBandHeightRatio    float64 `yaml:"dni_band_height_ratio"`
	DniRoiSizeRatio       float64 `yaml:"dni_roi_size_ratio"`
	DniIntensityThreshold float64 `yaml:"dni_intensity_threshold"` // Max mean gray (0-255) to accept a digit
	DniMultipleMargin     float64 `yaml:"dni_multiple_margin"`     // 0 disables the runner-up check

	// Answers
	OptionsPerQuestion       int             `yaml:"options_per_question"`
	AnswerRoiSizeRatio       float64         `yaml:"answer_roi_size_ratio"`
	AnswerIntensityThreshold float64         `yaml:"answer_intensity_threshold"`
	AnswerMultipleMargin     float64         `yaml:"answer_multiple_margin"`
	QuestionBlocks           []QuestionBlock `yaml:"question_blocks"`

	AnswerBlockSplitGapRatio  float64 `yaml:"answer_block_split_gap_ratio"`
	AnswerColumnMergeGapRatio float64 `yaml:"answer_column_merge_gap_ratio"`

	// Bottom anchor marks
	MinBottomMarkAreaRatio    float64 `yaml:"min_bottom_mark_area_ratio"`
	MaxBottomMarkAreaRatio    float64 `yaml:"max_bottom_mark_area_ratio"`
	MinBottomMarkAspectRatio  float64 `yaml:"min_bottom_mark_aspect_ratio"`
	MaxBottomMarkAspectRatio  float64 `yaml:"max_bottom_mark_aspect_ratio"`
	BottomMarkBandHeightRatio float64 `yaml:"bottom_mark_band_height_ratio"`
	DniMaxXRatio              float64 `yaml:"dni_max_x_ratio"`
	AnswersMinXRatio          float64 `yaml:"answers_min_x_ratio"`

	SkewToleranceDegrees float64 `yaml:"skew_tolerance_degrees"`

	ExportDebugImages bool `yaml:"export_debug_images"`

	Template Template `yaml:"template"`
}

// Default returns the settings for the standard 100-question sheet.
func Default() Settings {
	return Settings{
		Mode: ModeAnchors,

		DniDigits:             8,
		DniRows:               10,
		DniBandHeightRatio:    0.24,
		DniRoiSizeRatio:       0.012,
		DniIntensityThreshold: 140,

		OptionsPerQuestion:       5,
		AnswerRoiSizeRatio:       0.013,
		AnswerIntensityThreshold: 150,
		AnswerMultipleMargin:     12,
		QuestionBlocks: []QuestionBlock{
			{StartQuestion: 1, QuestionCount: 25, HeightRatio: 0.63},
			{StartQuestion: 26, QuestionCount: 25, HeightRatio: 0.63},
			{StartQuestion: 51, QuestionCount: 25, HeightRatio: 0.63},
			{StartQuestion: 76, QuestionCount: 25, HeightRatio: 0.63},
		},

		AnswerBlockSplitGapRatio:  0.035,
		AnswerColumnMergeGapRatio: 0.008,

		MinBottomMarkAreaRatio:    0.00025,
		MaxBottomMarkAreaRatio:    0.0045,
		MinBottomMarkAspectRatio:  2.2,
		MaxBottomMarkAspectRatio:  10.0,
		BottomMarkBandHeightRatio: 0.22,
		DniMaxXRatio:              0.32,
		AnswersMinXRatio:          0.35,

		SkewToleranceDegrees: 0.2,

		Template: DefaultTemplate(),
	}
}

// TotalQuestions returns the number of questions across all blocks.
func (s Settings) TotalQuestions() int {
	total := 0
	for _, b := range s.QuestionBlocks {
		total += b.QuestionCount
	}
	return total
}

// Validate checks that the settings describe a usable layout.
func (s Settings) Validate() error {
	switch s.Mode {
	case ModeAnchors:
	case ModeTemplate:
		return s.Template.Validate()
	default:
		return invalid("unknown mode %q", s.Mode)
	}

	if s.DniDigits <= 0 || s.DniRows <= 0 {
		return invalid("dni digits and rows must be positive, got %d and %d", s.DniDigits, s.DniRows)
	}
	if s.OptionsPerQuestion <= 0 || s.OptionsPerQuestion > 26 {
		return invalid("options per question must be between 1 and 26, got %d", s.OptionsPerQuestion)
	}

	ratios := []struct {
		name  string
		value float64
	}{
		{"dni_band_height_ratio", s.DniBandHeightRatio},
		{"dni_roi_size_ratio", s.DniRoiSizeRatio},
		{"answer_roi_size_ratio", s.AnswerRoiSizeRatio},
		{"answer_block_split_gap_ratio", s.AnswerBlockSplitGapRatio},
		{"answer_column_merge_gap_ratio", s.AnswerColumnMergeGapRatio},
		{"min_bottom_mark_area_ratio", s.MinBottomMarkAreaRatio},
		{"max_bottom_mark_area_ratio", s.MaxBottomMarkAreaRatio},
		{"bottom_mark_band_height_ratio", s.BottomMarkBandHeightRatio},
		{"dni_max_x_ratio", s.DniMaxXRatio},
		{"answers_min_x_ratio", s.AnswersMinXRatio},
	}
	for _, r := range ratios {
		if r.value <= 0 || r.value > 1 {
			return invalid("%s must be in (0, 1], got %g", r.name, r.value)
		}
	}

	if s.MinBottomMarkAreaRatio > s.MaxBottomMarkAreaRatio {
		return invalid("bottom mark area bounds are inverted (%g > %g)", s.MinBottomMarkAreaRatio, s.MaxBottomMarkAreaRatio)
	}
	if s.MinBottomMarkAspectRatio <= 0 || s.MinBottomMarkAspectRatio > s.MaxBottomMarkAspectRatio {
		return invalid("bottom mark aspect bounds are invalid (%g, %g)", s.MinBottomMarkAspectRatio, s.MaxBottomMarkAspectRatio)
	}
	if s.AnswerColumnMergeGapRatio >= s.AnswerBlockSplitGapRatio {
		return invalid("merge gap (%g) must be smaller than split gap (%g)", s.AnswerColumnMergeGapRatio, s.AnswerBlockSplitGapRatio)
	}

	for _, t := range []struct {
		name  string
		value float64
	}{
		{"dni_intensity_threshold", s.DniIntensityThreshold},
		{"answer_intensity_threshold", s.AnswerIntensityThreshold},
	} {
		if t.value <= 0 || t.value > 255 {
			return invalid("%s must be in (0, 255], got %g", t.name, t.value)
		}
	}
	if s.AnswerMultipleMargin < 0 || s.DniMultipleMargin < 0 {
		return invalid("margins must not be negative")
	}
	if s.SkewToleranceDegrees < 0 {
		return invalid("skew tolerance must not be negative, got %g", s.SkewToleranceDegrees)
	}

	if len(s.QuestionBlocks) == 0 {
		return invalid("at least one question block is required")
	}
	return validateBlocks(s.QuestionBlocks)
}

func validateBlocks(blocks []QuestionBlock) error {
	seen := make(map[int]int)
	for i, b := range blocks {
		if b.StartQuestion <= 0 || b.QuestionCount <= 0 {
			return invalid("question block %d: start and count must be positive", i)
		}
		if b.HeightRatio <= 0 || b.HeightRatio > 1 {
			return invalid("question block %d: height ratio must be in (0, 1], got %g", i, b.HeightRatio)
		}
		for q := b.StartQuestion; q < b.StartQuestion+b.QuestionCount; q++ {
			if prev, dup := seen[q]; dup {
				return invalid("question %d appears in blocks %d and %d", q, prev, i)
			}
			seen[q] = i
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSettings, fmt.Sprintf(format, args...))
}

// Load reads settings from a YAML file. Keys missing from the file keep their defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings on top of Default and validates the result.
func Parse(data []byte) (Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the settings as YAML.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
