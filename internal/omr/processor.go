// Package omr reads answer sheets: it locates the printed anchor marks along the
// bottom of a scanned page, corrects skew, and samples the identification grid and the
// answer bubbles relative to those marks.
package omr

import (
	"context"
	"image"
	"log/slog"
	"strings"

	"omr-scanner/internal/page"
	"omr-scanner/internal/settings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"
)

const instrumentationName = "omr-scanner/omr"

// PageResult is everything read from one page.
type PageResult struct {
	Source         string         `json:"source,omitempty"` // file the page came from, set by ProcessBatch
	Page           int            `json:"page"`
	Identification string         `json:"identification"`
	Answers        []AnswerResult `json:"answers"`
	Anchors        int            `json:"anchors"`
	SkewDegrees    float64        `json:"skew_degrees"`
}

// Processor reads pages with a fixed set of settings. It holds no per-page state and
// may be shared by concurrent goroutines.
type Processor struct {
	settings settings.Settings
	exporter DebugExporter
	logger   *slog.Logger

	tracer     trace.Tracer
	pages      metric.Int64Counter
	answers    metric.Int64Counter
	unreadable metric.Int64Counter
}

// Option configures a Processor.
type Option func(*Processor)

// WithDebugExporter sets where sampled regions go when ExportDebugImages is on.
func WithDebugExporter(e DebugExporter) Option {
	return func(p *Processor) { p.exporter = e }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProcessor validates s and returns a processor using it for every page.
func NewProcessor(s settings.Settings, opts ...Option) (*Processor, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		settings: s,
		logger:   slog.Default(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(p)
	}

	meter := otel.Meter(instrumentationName)
	p.pages, _ = meter.Int64Counter("omr.pages",
		metric.WithDescription("Pages read"), metric.WithUnit("{page}"))
	p.answers, _ = meter.Int64Counter("omr.answers",
		metric.WithDescription("Questions classified, by state"), metric.WithUnit("{question}"))
	p.unreadable, _ = meter.Int64Counter("omr.unreadable_digits",
		metric.WithDescription("Identification digits read as '?'"), metric.WithUnit("{digit}"))

	return p, nil
}

// Settings returns the settings the processor was built with.
func (p *Processor) Settings() settings.Settings {
	return p.settings
}

// ProcessPage reads one page with the processor's settings. Only a malformed image is
// an error; missing anchors or unreadable marks show up in the result.
func (p *Processor) ProcessPage(ctx context.Context, img page.Image, pageNumber int) (*PageResult, error) {
	return p.ProcessPageWith(ctx, img, pageNumber, p.settings)
}

// ProcessPageWith reads one page with settings that override the processor's own.
func (p *Processor) ProcessPageWith(ctx context.Context, img page.Image, pageNumber int, s settings.Settings) (*PageResult, error) {
	ctx, span := p.tracer.Start(ctx, "omr.process_page",
		trace.WithAttributes(attribute.Int("omr.page", pageNumber), attribute.String("omr.mode", string(s.Mode))))
	defer span.End()

	result, err := p.process(img, pageNumber, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("omr.anchors", result.Anchors),
		attribute.Float64("omr.skew_degrees", result.SkewDegrees),
	)
	p.record(ctx, s, result)
	return result, nil
}

func (p *Processor) process(img page.Image, pageNumber int, s settings.Settings) (*PageResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var idRects, answerRects *[]image.Rectangle
	if s.ExportDebugImages && p.exporter != nil {
		idRects, answerRects = new([]image.Rectangle), new([]image.Rectangle)
	}

	var (
		pp     *PreprocessedPage
		err    error
		result = &PageResult{Page: pageNumber}
	)
	if s.Mode == settings.ModeTemplate {
		if pp, err = PreprocessTemplate(img); err != nil {
			return nil, err
		}
		defer pp.Close()
		result.Identification = ReadTemplateIdentification(pp, s.Template, idRects)
		result.Answers = ReadTemplateAnswers(pp, s.Template, answerRects)
	} else {
		if pp, err = Preprocess(img, s); err != nil {
			return nil, err
		}
		defer pp.Close()
		p.logger.Debug("page preprocessed", "page", pageNumber, "anchors", len(pp.Anchors),
			"skew", pp.SkewDegrees, "rotated", pp.Rotated)
		result.Identification = ReadIdentification(pp, s, idRects)
		result.Answers = ReadAnswers(pp, s, answerRects)
		result.Anchors = len(pp.Anchors)
		result.SkewDegrees = pp.SkewDegrees
	}

	if strings.ContainsRune(result.Identification, Unreadable) {
		p.logger.Warn("identification not fully readable", "page", pageNumber,
			"identification", result.Identification, "anchors", result.Anchors)
	}

	if idRects != nil {
		p.export(pp.Color, *idRects, pageNumber, DebugIdentification)
		p.export(pp.Color, *answerRects, pageNumber, DebugAnswers)
		p.export(pp.Color, AnchorRects(pp.Anchors), pageNumber, DebugAnchors)
	}
	return result, nil
}

// export hands regions to the exporter, discarding its errors and panics.
func (p *Processor) export(img gocv.Mat, regions []image.Rectangle, pageNumber int, category DebugCategory) {
	if len(regions) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Debug("debug export panicked", "page", pageNumber, "category", category, "panic", r)
		}
	}()
	if err := p.exporter.Export(img, regions, pageNumber, category); err != nil {
		p.logger.Debug("debug export failed", "page", pageNumber, "category", category, "error", err)
	}
}

func (p *Processor) record(ctx context.Context, s settings.Settings, r *PageResult) {
	p.pages.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(s.Mode))))

	counts := map[AnswerState]int64{}
	for _, a := range r.Answers {
		counts[a.State]++
	}
	for _, state := range []AnswerState{Blank, Valid, Multiple} {
		if n := counts[state]; n > 0 {
			p.answers.Add(ctx, n, metric.WithAttributes(attribute.String("state", state.String())))
		}
	}

	if n := strings.Count(r.Identification, string(Unreadable)); n > 0 {
		p.unreadable.Add(ctx, int64(n))
	}
}
