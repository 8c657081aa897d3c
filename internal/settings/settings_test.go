package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, 100, s.TotalQuestions())
	assert.Equal(t, 80, s.Template.TotalQuestions())
	require.NoError(t, s.Template.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"unknown mode", func(s *Settings) { s.Mode = "magic" }},
		{"zero digits", func(s *Settings) { s.DniDigits = 0 }},
		{"ratio above one", func(s *Settings) { s.DniBandHeightRatio = 1.5 }},
		{"zero roi ratio", func(s *Settings) { s.AnswerRoiSizeRatio = 0 }},
		{"inverted area bounds", func(s *Settings) { s.MinBottomMarkAreaRatio = 0.01 }},
		{"inverted aspect bounds", func(s *Settings) { s.MaxBottomMarkAspectRatio = 1 }},
		{"merge wider than split", func(s *Settings) { s.AnswerColumnMergeGapRatio = 0.05 }},
		{"threshold above 255", func(s *Settings) { s.AnswerIntensityThreshold = 300 }},
		{"negative margin", func(s *Settings) { s.AnswerMultipleMargin = -1 }},
		{"no blocks", func(s *Settings) { s.QuestionBlocks = nil }},
		{"overlapping blocks", func(s *Settings) { s.QuestionBlocks[1].StartQuestion = 20 }},
		{"too many options", func(s *Settings) { s.OptionsPerQuestion = 27 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestTemplateModeValidatesTemplateOnly(t *testing.T) {
	s := Default()
	s.Mode = ModeTemplate
	s.QuestionBlocks = nil
	require.NoError(t, s.Validate())

	s.Template.AnswerColumns[0].Region.Width = 0.9
	assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
}

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	s, err := Parse([]byte("answer_intensity_threshold: 120\ndni_multiple_margin: 5\n"))
	require.NoError(t, err)
	assert.Equal(t, 120.0, s.AnswerIntensityThreshold)
	assert.Equal(t, 5.0, s.DniMultipleMargin)
	assert.Equal(t, Default().DniDigits, s.DniDigits)
	assert.Len(t, s.QuestionBlocks, 4)

	_, err = Parse([]byte("dni_digits: -2\n"))
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = Parse([]byte("dni_digits: [\n"))
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.yaml")
	want := Default()
	want.QuestionBlocks = []QuestionBlock{{StartQuestion: 1, QuestionCount: 30, HeightRatio: 0.5}}
	want.ExportDebugImages = true
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
