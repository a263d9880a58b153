package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"part-identifier/internal/config"
	"part-identifier/internal/debug/timing"
	"part-identifier/internal/logger"
	"part-identifier/internal/ocr"
	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"
	"part-identifier/internal/processing/chain"
)

// Request describes one image to identify.
type Request struct {
	// ID names the run in logs and results; defaults to the file name.
	ID   string
	Path string
	// ArtifactPath, when set, receives the prepared binary image.
	ArtifactPath string
	// StageDir, when set, receives NN_<state>.png for every stage.
	StageDir string
}

// Result is the outcome of a run whose preprocessing succeeded.
type Result struct {
	ID      string
	Path    string
	Width   int
	Height  int
	Metrics BinaryMetrics
	// Recognition is nil when the Coordinator has no recognizer.
	Recognition *ocr.Result

	ArtifactPath string
	StageFiles   []string
	// ArtifactErr wraps ErrArtifact when persisting any output failed.
	ArtifactErr error
	Duration    time.Duration
}

// Text is the recognized text, or "" without recognition.
func (r *Result) Text() string {
	if r == nil || r.Recognition == nil {
		return ""
	}
	return r.Recognition.Text
}

type CoordinatorOption func(*Coordinator)

// WithRecognizer enables the recognition step. opts are applied to every
// ocr.Input after the configured OCR options.
func WithRecognizer(r Recognizer, opts ...ocr.InputOption) CoordinatorOption {
	return func(c *Coordinator) {
		c.recognizer = r
		c.ocrOptions = append(c.ocrOptions, opts...)
	}
}

func WithLogger(l logger.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

func WithTimingTracker(t *timing.Tracker) CoordinatorOption {
	return func(c *Coordinator) { c.tracker = t }
}

func WithLoader(l ImageLoader) CoordinatorOption {
	return func(c *Coordinator) { c.loader = l }
}

func WithSaver(s ImageSaver) CoordinatorOption {
	return func(c *Coordinator) { c.saver = s }
}

// Coordinator runs Load, Preprocess, optional persistence and Recognize for
// one image at a time. Run may be called concurrently.
type Coordinator struct {
	loader       ImageLoader
	saver        ImageSaver
	preprocessor *Preprocessor
	recognizer   Recognizer
	ocrOptions   []ocr.InputOption
	logger       logger.Logger
	tracker      *timing.Tracker
}

func NewCoordinator(cfg config.Config, opts ...CoordinatorOption) (*Coordinator, error) {
	c := &Coordinator{logger: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.ocrOptions = append(InputOptions(cfg.OCR), c.ocrOptions...)

	if c.loader == nil {
		c.loader = NewLoader(c.logger, c.tracker)
	}
	if c.saver == nil {
		c.saver = NewSaver(c.logger, c.tracker)
	}

	chainOpts := []chain.Option{chain.WithLogger(c.logger)}
	if c.tracker != nil {
		chainOpts = append(chainOpts, chain.WithTracker(c.tracker))
	}
	pre, err := NewPreprocessor(cfg.Preprocess, chainOpts...)
	if err != nil {
		return nil, err
	}
	c.preprocessor = pre

	return c, nil
}

// InputOptions maps the OCR configuration onto recognizer input options.
func InputOptions(cfg config.OCR) []ocr.InputOption {
	var opts []ocr.InputOption
	if len(cfg.Languages) > 0 {
		opts = append(opts, ocr.WithLanguages(cfg.Languages...))
	}
	if cfg.PageSegMode > 0 {
		opts = append(opts, ocr.WithPageSegMode(cfg.PageSegMode))
	}
	if cfg.Whitelist != "" {
		opts = append(opts, ocr.WithWhitelist(cfg.Whitelist))
	}
	if cfg.DPI > 0 {
		opts = append(opts, ocr.WithDPI(cfg.DPI))
	}
	return opts
}

// Run loads req.Path and identifies it. Preprocessing failures are returned
// as *processing.StageError or ErrInvalidImage with a nil Result. A
// recognizer failure returns the Result together with an ErrRecognition
// error.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	if req.ID == "" {
		req.ID = filepath.Base(req.Path)
	}

	data, err := c.loader.LoadFile(req.Path)
	if err != nil {
		c.logger.Error("Coordinator", err, map[string]interface{}{"id": req.ID, "path": req.Path})
		return nil, err
	}
	defer data.Close()

	return c.RunImage(ctx, req, data.Mat)
}

// RunImage identifies an already decoded image. src is not modified or
// closed.
func (c *Coordinator) RunImage(ctx context.Context, req Request, src *safe.Mat) (*Result, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = "image"
	}

	res := &Result{ID: req.ID, Path: req.Path, Width: src.Width(), Height: src.Height()}

	var observer chain.Observer
	if req.StageDir != "" {
		observer = c.stageDumper(req, src, res)
	}

	prepared, err := c.preprocessor.ProcessObserved(ctx, src, observer)
	if err != nil {
		fields := map[string]interface{}{"id": req.ID}
		if stage, ok := processing.FailedStage(err); ok {
			fields["stage"] = stage.String()
		}
		c.logger.Error("Coordinator", err, fields)
		return nil, err
	}
	defer prepared.Close()

	if res.Metrics, err = CalculateBinaryMetrics(prepared); err != nil {
		return nil, fmt.Errorf("measure prepared image: %w", err)
	}

	if req.ArtifactPath != "" {
		if err := c.persist(req.ArtifactPath, prepared); err != nil {
			res.ArtifactErr = errors.Join(res.ArtifactErr, err)
		} else {
			res.ArtifactPath = req.ArtifactPath
		}
	}

	if c.recognizer != nil {
		rec, err := c.recognize(ctx, req.ID, prepared)
		if err != nil {
			res.Duration = time.Since(start)
			c.logger.Error("Coordinator", err, map[string]interface{}{"id": req.ID, "engine": c.recognizer.Name()})
			return res, err
		}
		res.Recognition = &rec
	}

	res.Duration = time.Since(start)

	fields := res.Metrics.Fields()
	fields["id"] = req.ID
	fields["duration"] = res.Duration.String()
	if res.Recognition != nil {
		fields["text"] = res.Recognition.Text
		fields["confidence"] = res.Recognition.Confidence
	}
	c.logger.Info("Coordinator", "image identified", fields)

	return res, nil
}

func (c *Coordinator) recognize(ctx context.Context, id string, prepared *safe.Mat) (ocr.Result, error) {
	span := c.startTiming("recognize")
	defer c.endTiming(span)

	png, err := c.saver.EncodePNG(prepared)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("%w: encode input: %w", ErrRecognition, err)
	}

	in := ocr.NewPNGInput(id, png, prepared.Width(), prepared.Height(), c.ocrOptions...)
	rec, err := c.recognizer.Recognize(ctx, in)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("%w: %s: %w", ErrRecognition, c.recognizer.Name(), err)
	}
	return rec, nil
}

func (c *Coordinator) persist(path string, mat *safe.Mat) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return c.artifactFailed(path, err)
		}
	}
	if err := c.saver.SaveToPath(path, mat); err != nil {
		return c.artifactFailed(path, err)
	}
	return nil
}

func (c *Coordinator) artifactFailed(path string, err error) error {
	wrapped := fmt.Errorf("%w: %s: %w", ErrArtifact, path, err)
	c.logger.Warning("Coordinator", "artifact not written", map[string]interface{}{
		"path":  path,
		"error": err.Error(),
	})
	return wrapped
}

// stageDumper writes the loaded image and every stage output under
// req.StageDir/<id>/. Write failures are collected on res.
func (c *Coordinator) stageDumper(req Request, src *safe.Mat, res *Result) chain.Observer {
	dir := filepath.Join(req.StageDir, stageDirName(req.ID))
	dump := func(state processing.State, mat *safe.Mat) {
		path := filepath.Join(dir, fmt.Sprintf("%02d_%s.png", int(state), state))
		if err := c.persist(path, mat); err != nil {
			res.ArtifactErr = errors.Join(res.ArtifactErr, err)
			return
		}
		res.StageFiles = append(res.StageFiles, path)
	}

	dump(processing.StateLoaded, src)
	return dump
}

func stageDirName(id string) string {
	name := strings.TrimSuffix(filepath.Base(id), filepath.Ext(id))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "image"
	}
	return name
}

func (c *Coordinator) Close() error {
	return c.preprocessor.Close()
}

func (c *Coordinator) startTiming(op string) timing.Span {
	if c.tracker == nil {
		return timing.Span{}
	}
	return c.tracker.StartTiming(op)
}

func (c *Coordinator) endTiming(span timing.Span) {
	if c.tracker != nil {
		c.tracker.EndTiming(span)
	}
}
