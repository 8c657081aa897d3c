// Command omrcalib prints what the reader sees on one page: the anchor marks, the
// measured skew and the mean gray level of every sampled cell. Use it to tune the
// anchor filters and intensity thresholds for a new sheet design.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"slices"
	"strings"

	"omr-scanner/internal/omr"
	"omr-scanner/internal/page"
	"omr-scanner/internal/settings"
	"omr-scanner/internal/version"

	"gonum.org/v1/gonum/stat"
)

func main() {
	imagePath := flag.String("image", "", "Path to a scanned sheet (PNG, JPEG, TIFF, BMP or PDF)")
	pageNumber := flag.Int("page", 1, "Page of a multi-page file")
	settingsPath := flag.String("settings", "", "Sheet settings YAML (default built-in sheet)")
	debugDir := flag.String("debug-dir", "", "Write anchor and sampling overlays here")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("omrcalib"))
		return
	}
	if *imagePath == "" {
		fmt.Println("Usage: omrcalib -image <path> [-page 1] [-settings sheet.yaml] [-debug-dir dir]")
		os.Exit(1)
	}

	s := settings.Default()
	if *settingsPath != "" {
		var err error
		if s, err = settings.Load(*settingsPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
			os.Exit(1)
		}
	}
	if s.Mode != settings.ModeAnchors {
		fmt.Fprintf(os.Stderr, "Calibration needs mode %q, settings use %q\n", settings.ModeAnchors, s.Mode)
		os.Exit(1)
	}

	sources, err := page.Load(*imagePath, page.DefaultDPI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}
	if *pageNumber < 1 || *pageNumber > len(sources) {
		fmt.Fprintf(os.Stderr, "Page %d out of range (file has %d)\n", *pageNumber, len(sources))
		os.Exit(1)
	}
	src := sources[*pageNumber-1]
	fmt.Printf("Loaded %s page %d: %dx%d pixels, %d channels, %.0f DPI\n",
		src.Path, src.Number, src.Image.Width, src.Image.Height, src.Image.Channels, src.DPI)

	p, err := omr.Preprocess(src.Image, s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Preprocessing failed: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	printAnchors(p, s)

	var idRects, answerRects []image.Rectangle
	printIdentification(omr.SampleIdentification(p, s, &idRects), s)
	printAnswers(omr.SampleAnswers(p, s, &answerRects), s)

	if *debugDir != "" {
		exporter := omr.FileExporter{Dir: *debugDir}
		overlays := []struct {
			category omr.DebugCategory
			regions  []image.Rectangle
		}{
			{omr.DebugAnchors, omr.AnchorRects(p.Anchors)},
			{omr.DebugIdentification, idRects},
			{omr.DebugAnswers, answerRects},
		}
		for _, o := range overlays {
			if len(o.regions) == 0 {
				continue
			}
			if err := exporter.Export(p.Color, o.regions, src.Number, o.category); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write %s overlay: %v\n", o.category, err)
			}
		}
		fmt.Printf("\nOverlays written to %s\n", *debugDir)
	}
}

func printAnchors(p *omr.PreprocessedPage, s settings.Settings) {
	fmt.Printf("\nSkew: %.3f deg (tolerance %.2f), rotated: %v\n", p.SkewDegrees, s.SkewToleranceDegrees, p.Rotated)
	fmt.Printf("\nDetected %d anchors (expected %d):\n", len(p.Anchors),
		s.DniDigits+len(s.QuestionBlocks)*s.OptionsPerQuestion)
	fmt.Printf("%-4s %8s %8s %6s %6s %8s %7s\n", "#", "X", "Y", "W", "H", "Area", "Aspect")
	fmt.Println(strings.Repeat("-", 52))
	for i, a := range p.Anchors {
		fmt.Printf("%-4d %8.1f %8.1f %6d %6d %8d %7.2f\n",
			i, a.Center.X, a.Center.Y, a.Bounds.Width, a.Bounds.Height, a.Area, a.Bounds.Aspect())
	}
}

func printIdentification(columns [][]float64, s settings.Settings) {
	fmt.Printf("\nIdentification cells (threshold %.1f):\n", s.DniIntensityThreshold)
	if columns == nil {
		fmt.Printf("  not enough anchors left of %.0f%% of the width\n", s.DniMaxXRatio*100)
		return
	}
	fmt.Printf("%-4s", "Row")
	for c := range columns {
		fmt.Printf(" %6s", fmt.Sprintf("D%d", c+1))
	}
	fmt.Println()
	for row := 0; row < s.DniRows; row++ {
		fmt.Printf("%-4d", row)
		for _, samples := range columns {
			fmt.Printf(" %6.1f", samples[row])
		}
		fmt.Println()
	}

	var darkest, rest []float64
	for _, samples := range columns {
		d, r := split(samples)
		darkest = append(darkest, d)
		rest = append(rest, r...)
	}
	printSuggestion(darkest, rest)
}

func printAnswers(questions []omr.QuestionSamples, s settings.Settings) {
	fmt.Printf("\nAnswer cells (threshold %.1f, margin %.1f):\n", s.AnswerIntensityThreshold, s.AnswerMultipleMargin)
	var darkest, rest []float64
	for _, q := range questions {
		if q.Samples == nil {
			fmt.Printf("Q%-4d no anchor group\n", q.Question)
			continue
		}
		fmt.Printf("Q%-4d", q.Question)
		for o, v := range q.Samples {
			fmt.Printf(" %c:%6.1f", 'A'+o, v)
		}
		fmt.Println()

		d, r := split(q.Samples)
		darkest = append(darkest, d)
		rest = append(rest, r...)
	}
	printSuggestion(darkest, rest)
}

// split returns the darkest sample and the others.
func split(samples []float64) (float64, []float64) {
	i := slices.Index(samples, slices.Min(samples))
	return samples[i], append(slices.Clone(samples[:i]), samples[i+1:]...)
}

// printSuggestion reports the spread of the darkest cell per row against the rest. On a
// sheet where every row carries exactly one mark, a threshold halfway between the
// lightest mark and the darkest empty cell separates them.
func printSuggestion(darkest, rest []float64) {
	if len(darkest) == 0 || len(rest) == 0 {
		return
	}
	fmt.Printf("  darkest per row: mean %.1f sd %.1f max %.1f\n",
		stat.Mean(darkest, nil), stat.StdDev(darkest, nil), slices.Max(darkest))
	fmt.Printf("  other cells:     mean %.1f sd %.1f min %.1f\n",
		stat.Mean(rest, nil), stat.StdDev(rest, nil), slices.Min(rest))
	if lo, hi := slices.Max(darkest), slices.Min(rest); lo < hi {
		fmt.Printf("  suggested threshold: %.1f\n", (lo+hi)/2)
	} else {
		fmt.Println("  marks and empty cells overlap; check the sheet is fully marked")
	}
}
