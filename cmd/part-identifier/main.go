// part-identifier prepares photographs of component labels for OCR and reads
// the part markings.
//
// Usage:
//
//	part-identifier [options] image [image ...]
//
// Configuration is layered: built-in defaults, then -config (YAML), then
// PARTID_* environment variables (optionally loaded from -env), then flags.
//
// Exit status is 0 on success, 1 for usage or configuration errors, 2 when
// an image could not be preprocessed and 3 when recognition failed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"part-identifier/internal/config"
	"part-identifier/internal/debug/memtracker"
	"part-identifier/internal/debug/timing"
	"part-identifier/internal/logger"
	"part-identifier/internal/ocr"
	"part-identifier/internal/ocr/tesseract"
	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/pipeline"
	"part-identifier/internal/processing"
	"part-identifier/internal/shutdown"
)

const (
	exitOK = iota
	exitUsage
	exitPreprocess
	exitRecognition
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath  string
	envPath     string
	outDir      string
	outFormat   string
	stageDir    string
	noOCR       bool
	electronics bool
	trackMats   bool

	workers   int
	languages string
	psm       int
	whitelist string
	dpi       int
	tessdata  string
	logLevel  string
	logFormat string

	set   map[string]bool
	paths []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("part-identifier", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.envPath, "env", ".env", "dotenv file with PARTID_* overrides, ignored when missing")
	fs.StringVar(&o.outDir, "out", "", "directory for prepared images")
	fs.StringVar(&o.outFormat, "format", "png", "prepared image format: png, tiff, bmp or jpg")
	fs.StringVar(&o.stageDir, "dump-stages", "", "directory for per-stage debug images")
	fs.BoolVar(&o.noOCR, "no-ocr", false, "stop after preprocessing")
	fs.BoolVar(&o.electronics, "electronics", false, "restrict recognition to part-number characters")
	fs.BoolVar(&o.trackMats, "track-buffers", false, "report image buffers left open after the run")
	fs.IntVar(&o.workers, "workers", 0, "images processed in parallel")
	fs.StringVar(&o.languages, "lang", "", "comma-separated Tesseract languages")
	fs.IntVar(&o.psm, "psm", 0, "Tesseract page segmentation mode")
	fs.StringVar(&o.whitelist, "whitelist", "", "characters the recognizer may return")
	fs.IntVar(&o.dpi, "dpi", 0, "resolution hint for the recognizer")
	fs.StringVar(&o.tessdata, "tessdata", "", "Tesseract trained data directory")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", "", "console or json")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: part-identifier [options] image [image ...]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	o.paths = fs.Args()
	if len(o.paths) == 0 {
		fs.Usage()
		return nil, errors.New("no images given")
	}
	switch strings.ToLower(o.outFormat) {
	case "png", "tiff", "tif", "bmp", "jpg", "jpeg":
	default:
		return nil, fmt.Errorf("unknown output format %q", o.outFormat)
	}
	return o, nil
}

// loadConfig layers defaults, file, environment and flags.
func loadConfig(o *options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return config.Config{}, err
		}
	}

	if _, err := config.LoadDotEnv(o.envPath); err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}

	if o.set["workers"] {
		cfg.Workers = o.workers
	}
	if o.set["lang"] {
		cfg.OCR.Languages = splitList(o.languages)
	}
	if o.set["psm"] {
		cfg.OCR.PageSegMode = o.psm
	}
	if o.electronics {
		cfg.OCR.Whitelist = ocr.ElectronicsChars
	}
	if o.set["whitelist"] {
		cfg.OCR.Whitelist = o.whitelist
	}
	if o.set["dpi"] {
		cfg.OCR.DPI = o.dpi
	}
	if o.set["tessdata"] {
		cfg.OCR.TessdataPrefix = o.tessdata
	}
	if o.set["log-level"] {
		cfg.LogLevel = o.logLevel
	}
	if o.set["log-format"] {
		cfg.LogFormat = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config, out io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, processing.InvalidConfiguration("%v", err)
	}
	if strings.EqualFold(cfg.LogFormat, config.LogFormatJSON) {
		return logger.NewZerolog(out, level), nil
	}
	return logger.NewConsoleLogger(out, level), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "part-identifier: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "part-identifier: %v\n", err)
		return exitUsage
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "part-identifier: %v\n", err)
		return exitUsage
	}

	var buffers *memtracker.Tracker
	if o.trackMats {
		buffers = memtracker.NewTracker()
		safe.SetAllocationTracker(buffers)
		defer safe.SetAllocationTracker(nil)
	}

	lifecycle := shutdown.NewManager(ctx, log)
	stopListening := lifecycle.Listen()
	defer stopListening()

	tracker := timing.NewTracker()
	coordOpts := []pipeline.CoordinatorOption{
		pipeline.WithLogger(log),
		pipeline.WithTimingTracker(tracker),
	}
	if !o.noOCR {
		engine := tesseract.New(
			tesseract.WithTessdataPrefix(cfg.OCR.TessdataPrefix),
			tesseract.WithDefaultLanguages(cfg.OCR.Languages...),
			tesseract.WithLogger(log),
		)
		coordOpts = append(coordOpts, pipeline.WithRecognizer(engine))
	}

	coordinator, err := pipeline.NewCoordinator(cfg, coordOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "part-identifier: %v\n", err)
		return exitUsage
	}
	lifecycle.Register("coordinator", coordinator)

	log.Info("main", "starting", map[string]interface{}{
		"images":  len(o.paths),
		"workers": cfg.Workers,
		"ocr":     !o.noOCR,
	})

	names := outputNames(o.paths)
	reqs := make([]pipeline.Request, len(o.paths))
	for i, p := range o.paths {
		reqs[i] = pipeline.Request{ID: names[i] + filepath.Ext(p), Path: p, StageDir: o.stageDir}
		if o.outDir != "" {
			reqs[i].ArtifactPath = artifactPath(o.outDir, names[i], o.outFormat)
		}
	}

	items := pipeline.NewBatch(coordinator, cfg.Workers, log).Run(lifecycle.Context(), reqs)
	code := report(items, stdout, stderr)

	if err := lifecycle.Shutdown(); err != nil {
		log.Error("main", err, nil)
	}

	for _, s := range tracker.Summary() {
		log.Debug("timing", s.Operation, map[string]interface{}{
			"count": s.Count,
			"total": s.Total.String(),
			"mean":  s.Mean().String(),
			"max":   s.Max.String(),
		})
	}
	if buffers != nil {
		reportBuffers(buffers, log)
	}

	return code
}

func reportBuffers(mt *memtracker.Tracker, log logger.Logger) {
	stats := mt.GetStats()
	log.Info("memtracker", "buffer usage", map[string]interface{}{
		"allocations": stats.AllocationCount,
		"bytes":       stats.TotalAllocated,
		"open":        stats.CurrentlyActive,
	})
	for _, leak := range mt.Active() {
		log.Warning("memtracker", "buffer left open", map[string]interface{}{
			"id":   leak.ID,
			"tag":  leak.Tag,
			"size": leak.Size,
		})
	}
}

// report prints one line per image and returns the exit status of the
// worst failure.
func report(items []pipeline.BatchItem, stdout, stderr io.Writer) int {
	code := exitOK
	for _, it := range items {
		path := it.Request.Path
		if it.Err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, it.Err)
			code = max(code, exitCode(it.Err))
			continue
		}

		res := it.Result
		if res.ArtifactErr != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, res.ArtifactErr)
		}
		if res.Recognition != nil {
			fmt.Fprintf(stdout, "%s\t%s\t%.2f\n", path, res.Recognition.Text, res.Recognition.Confidence)
		} else {
			fmt.Fprintf(stdout, "%s\tforeground=%.4f\n", path, res.Metrics.ForegroundRatio)
		}
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrRecognition):
		return exitRecognition
	case errors.Is(err, processing.ErrInvalidConfiguration):
		return exitUsage
	default:
		return exitPreprocess
	}
}

// outputNames returns one file stem per input path. A stem already taken,
// compared case-insensitively, gets a _2, _3, ... suffix in input order, so
// label.jpg from two directories never shares an artifact or a stage dump.
func outputNames(paths []string) []string {
	names := make([]string, len(paths))
	taken := make(map[string]bool, len(paths))
	for i, p := range paths {
		stem := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		if stem == "" || stem == "." || stem == string(filepath.Separator) {
			stem = "image"
		}
		name := stem
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		taken[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func artifactPath(dir, name, format string) string {
	return filepath.Join(dir, name+"."+strings.ToLower(format))
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
