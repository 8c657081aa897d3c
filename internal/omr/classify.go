package omr

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"sort"

	"omr-scanner/internal/settings"
	"omr-scanner/pkg/geometry"
)

// AnswerState is the outcome for one question.
type AnswerState int

const (
	Blank AnswerState = iota
	Valid
	Multiple
)

func (s AnswerState) String() string {
	switch s {
	case Blank:
		return "blank"
	case Valid:
		return "valid"
	case Multiple:
		return "multiple"
	default:
		return fmt.Sprintf("AnswerState(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s AnswerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *AnswerState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "blank":
		*s = Blank
	case "valid":
		*s = Valid
	case "multiple":
		*s = Multiple
	default:
		return fmt.Errorf("unknown answer state %q", name)
	}
	return nil
}

// AnswerResult is the decision for one question. Option is empty unless State is Valid.
type AnswerResult struct {
	Question   int         `json:"question"`
	Option     string      `json:"option,omitempty"`
	Confidence float64     `json:"confidence"`
	State      AnswerState `json:"state"`
}

// Classify decides a question from the mean intensity of each option, in option
// order. Options at or below threshold are candidates; the darkest wins unless the
// runner-up is within margin of it.
func Classify(samples []float64, threshold, margin float64) (state AnswerState, option int, confidence float64) {
	var candidates []int
	for i, v := range samples {
		if v <= threshold {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return samples[candidates[a]] < samples[candidates[b]]
	})

	switch {
	case len(candidates) == 0:
		return Blank, -1, 0
	case len(candidates) >= 2 && samples[candidates[1]]-samples[candidates[0]] < margin:
		return Multiple, -1, 0
	}
	best := candidates[0]
	return Valid, best, intensityConfidence(samples[best], threshold)
}

func intensityConfidence(intensity, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, (threshold-intensity)/threshold))
}

func optionLetter(index int) string {
	return string(rune('A' + index))
}

func newAnswer(question int, state AnswerState, option int, confidence float64) AnswerResult {
	r := AnswerResult{Question: question, State: state}
	if state == Valid && option >= 0 {
		r.Option = optionLetter(option)
		r.Confidence = confidence
	}
	return r
}

// QuestionSamples holds the mean gray level of each option of one question. Samples
// is nil when the question's block has no usable anchor group.
type QuestionSamples struct {
	Question int
	Samples  []float64
}

// ReadAnswers classifies every configured question, ordered by block then question.
// Blocks whose anchor group is not exactly OptionsPerQuestion marks read as blank.
// Sampled rectangles are appended to debug when it is not nil.
func ReadAnswers(p *PreprocessedPage, s settings.Settings, debug *[]image.Rectangle) []AnswerResult {
	questions := SampleAnswers(p, s, debug)
	results := make([]AnswerResult, 0, len(questions))
	for _, q := range questions {
		if q.Samples == nil {
			results = append(results, AnswerResult{Question: q.Question, State: Blank})
			continue
		}
		state, option, confidence := Classify(q.Samples, s.AnswerIntensityThreshold, s.AnswerMultipleMargin)
		results = append(results, newAnswer(q.Question, state, option, confidence))
	}
	return results
}

// SampleAnswers measures every option of every configured question. Within a block
// the rows split HeightRatio of the page above the block's anchors evenly.
func SampleAnswers(p *PreprocessedPage, s settings.Settings, debug *[]image.Rectangle) []QuestionSamples {
	width, height := p.Width(), p.Height()
	groups := BuildAnswerBlocks(p.Anchors, width, s)
	side := roiSide(s.AnswerRoiSizeRatio, height)

	out := make([]QuestionSamples, 0, s.TotalQuestions())
	for i, block := range s.QuestionBlocks {
		marks := groups[i]
		if len(marks) != s.OptionsPerQuestion {
			for q := 0; q < block.QuestionCount; q++ {
				out = append(out, QuestionSamples{Question: block.StartQuestion + q})
			}
			continue
		}

		band := block.HeightRatio * float64(height)
		yTop := math.Max(0, meanY(marks)-band)
		step := band / float64(block.QuestionCount)

		for q := 0; q < block.QuestionCount; q++ {
			cy := yTop + (float64(q)+0.5)*step
			samples := make([]float64, len(marks))
			for o, mark := range marks {
				roi := geometry.CenteredSquare(mark.Center.X, cy, side, width, height)
				samples[o] = meanIntensity(p.Gray, roi)
				if debug != nil {
					*debug = append(*debug, roi.ImageRect())
				}
			}
			out = append(out, QuestionSamples{Question: block.StartQuestion + q, Samples: samples})
		}
	}
	return out
}
