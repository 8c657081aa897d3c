package omr

import (
	"math"

	"omr-scanner/internal/settings"
)

// BuildAnswerBlocks partitions the answer anchors (center x at or right of
// AnswersMinXRatio) into one group per configured question block. The result always
// has exactly len(s.QuestionBlocks) groups; a group that does not hold exactly
// OptionsPerQuestion anchors marks a block that cannot be read.
func BuildAnswerBlocks(anchors []AnchorMark, width int, s settings.Settings) [][]AnchorMark {
	target := len(s.QuestionBlocks)
	marks := anchorsInRange(anchors, float64(width)*s.AnswersMinXRatio, math.Inf(1))
	sortByX(marks)

	splitGap := s.AnswerBlockSplitGapRatio * float64(width)
	mergeGap := s.AnswerColumnMergeGapRatio * float64(width)
	options := s.OptionsPerQuestion

	var groups [][]AnchorMark
	start := 0
	for i := 1; i <= len(marks); i++ {
		if i == len(marks) || marks[i].Center.X-marks[i-1].Center.X > splitGap {
			groups = append(groups, normalizeBlock(marks[start:i], options, mergeGap))
			start = i
		}
	}

	for len(groups) > target {
		before := len(groups)
		groups = mergeClosestBlocks(groups, options, mergeGap)
		if len(groups) == before {
			break
		}
	}
	for len(groups) < target {
		groups = append(groups, nil)
	}
	return groups[:target]
}

// normalizeBlock collapses anchors closer than mergeGap into the larger one and keeps
// at most the leftmost options anchors. It returns a new slice.
func normalizeBlock(block []AnchorMark, options int, mergeGap float64) []AnchorMark {
	if len(block) == 0 {
		return nil
	}
	sorted := append([]AnchorMark(nil), block...)
	sortByX(sorted)

	merged := []AnchorMark{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if cur.Center.X-last.Center.X <= mergeGap {
			if cur.Area > last.Area {
				*last = cur
			}
			continue
		}
		merged = append(merged, cur)
	}

	if len(merged) > options {
		merged = merged[:options]
	}
	return merged
}

// mergeClosestBlocks joins the pair of neighbouring groups with the smallest gap
// between them. A pair involving an empty group is merged first.
func mergeClosestBlocks(groups [][]AnchorMark, options int, mergeGap float64) [][]AnchorMark {
	if len(groups) <= 1 {
		return groups
	}

	index := -1
	minGap := math.Inf(1)
	for i := 1; i < len(groups); i++ {
		left, right := groups[i-1], groups[i]
		if len(left) == 0 || len(right) == 0 {
			index = i - 1
			break
		}
		if gap := right[0].Center.X - left[len(left)-1].Center.X; gap < minGap {
			minGap = gap
			index = i - 1
		}
	}
	if index < 0 {
		return groups
	}

	joined := append(append([]AnchorMark(nil), groups[index]...), groups[index+1]...)
	out := make([][]AnchorMark, 0, len(groups)-1)
	out = append(out, groups[:index]...)
	out = append(out, normalizeBlock(joined, options, mergeGap))
	out = append(out, groups[index+2:]...)
	return out
}
