// Command omrscan reads answer sheets from image files, directories or scanned PDFs
// and writes one JSON line per page.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"omr-scanner/internal/config"
	"omr-scanner/internal/omr"
	"omr-scanner/internal/page"
	"omr-scanner/internal/telemetry"
	"omr-scanner/internal/version"

	"github.com/google/uuid"
)

// record is one output line.
type record struct {
	Run string `json:"run"`
	*omr.PageResult
}

func main() {
	envFile := flag.String("env", ".env", "Optional .env file with OMR_* variables")
	settingsPath := flag.String("settings", "", "Sheet settings YAML (overrides OMR_SETTINGS)")
	debugDir := flag.String("debug-dir", "", "Write sampling overlays here (overrides OMR_DEBUG_DIR)")
	workers := flag.Int("workers", -1, "Parallel pages, 0 for one per CPU (overrides OMR_WORKERS)")
	dpi := flag.Float64("dpi", 0, "Resolution of files that do not record one (overrides OMR_DPI)")
	output := flag.String("o", "", "Output file (default stdout)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("omrscan"))
		return
	}
	if flag.NArg() == 0 {
		fmt.Println("Usage: omrscan [-settings sheet.yaml] [-debug-dir dir] [-o results.jsonl] <file|dir>...")
		os.Exit(1)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *settingsPath != "" {
		cfg.SettingsPath = *settingsPath
	}
	if *debugDir != "" {
		cfg.DebugDir = *debugDir
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	if *dpi > 0 {
		cfg.DPI = *dpi
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Service:  "omrscan",
		Version:  version.Version,
		Level:    cfg.LogLevel,
		Endpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up telemetry: %v\n", err)
		os.Exit(1)
	}
	defer shutdown(context.Background())

	if err := run(ctx, cfg, flag.Args(), *output); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		shutdown(context.Background())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string, output string) error {
	s, err := cfg.Settings()
	if err != nil {
		return err
	}

	var opts []omr.Option
	if cfg.DebugDir != "" {
		opts = append(opts, omr.WithDebugExporter(omr.FileExporter{Dir: cfg.DebugDir}))
	}
	proc, err := omr.NewProcessor(s, opts...)
	if err != nil {
		return err
	}

	files, err := page.Expand(args)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	runID := uuid.NewString()
	slog.Info("batch started", "run", runID, "files", len(files), "mode", s.Mode, "workers", cfg.Workers)
	start := time.Now()

	enc := json.NewEncoder(out)
	var pages, failed int
	for result, err := range proc.ProcessBatch(ctx, loadPages(files, cfg.DPI), cfg.Workers) {
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		pages++
		if err := enc.Encode(record{Run: runID, PageResult: result}); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "Processed %d pages (%d failed) in %v\n", pages, failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d pages could not be read", failed)
	}
	return nil
}

// loadPages decodes files lazily so only the pages in flight are held in memory.
// Files that cannot be decoded are reported and skipped.
func loadPages(files []string, dpi float64) iter.Seq[page.Source] {
	return func(yield func(page.Source) bool) {
		for _, path := range files {
			sources, err := page.Load(path, dpi)
			if err != nil {
				slog.Error("skipping file", "path", path, "error", err)
				continue
			}
			for _, src := range sources {
				if !yield(src) {
					return
				}
			}
		}
	}
}
