// Package config holds every tunable of the preprocessing pipeline and the
// recognizer. Values come from Default, then an optional YAML file, then the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"part-identifier/internal/processing"
	"part-identifier/internal/processing/filters"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Preprocess Preprocess `yaml:"preprocess"`
	OCR        OCR        `yaml:"ocr"`
	// Workers bounds how many images a batch processes at once.
	Workers   int    `yaml:"workers"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

type Preprocess struct {
	Deskew     Deskew     `yaml:"deskew"`
	CLAHE      CLAHE      `yaml:"clahe"`
	Threshold  Threshold  `yaml:"threshold"`
	Morphology Morphology `yaml:"morphology"`
	Median     Median     `yaml:"median"`
}

type Deskew struct {
	Epsilon        float64 `yaml:"epsilon"`
	DarkForeground bool    `yaml:"dark_foreground"`
}

type CLAHE struct {
	ClipLimit float64 `yaml:"clip_limit"`
	TileGrid  int     `yaml:"tile_grid"`
}

type Threshold struct {
	BlockSize int     `yaml:"block_size"`
	Offset    float64 `yaml:"offset"`
}

type Morphology struct {
	Shape      string `yaml:"shape"`
	Size       int    `yaml:"size"`
	Iterations int    `yaml:"iterations"`
}

type Median struct {
	KernelSize int `yaml:"kernel_size"`
}

type OCR struct {
	Languages []string `yaml:"languages"`
	// PageSegMode is a Tesseract PSM value; 0 keeps the engine default.
	PageSegMode int    `yaml:"page_seg_mode"`
	Whitelist   string `yaml:"whitelist"`
	DPI         int    `yaml:"dpi"`
	// TessdataPrefix overrides the trained data directory.
	TessdataPrefix string `yaml:"tessdata_prefix"`
}

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// DefaultPreprocess returns the reference pipeline parameters.
func DefaultPreprocess() Preprocess {
	return Preprocess{
		Deskew: Deskew{
			Epsilon:        filters.DefaultSkewEpsilon,
			DarkForeground: true,
		},
		CLAHE: CLAHE{
			ClipLimit: filters.DefaultCLAHEClipLimit,
			TileGrid:  filters.DefaultCLAHETileGrid,
		},
		Threshold: Threshold{
			BlockSize: filters.DefaultThresholdBlockSize,
			Offset:    filters.DefaultThresholdOffset,
		},
		Morphology: Morphology{
			Shape:      filters.DefaultMorphShape,
			Size:       filters.DefaultMorphSize,
			Iterations: filters.DefaultMorphIterations,
		},
		Median: Median{
			KernelSize: filters.DefaultMedianKernelSize,
		},
	}
}

func Default() Config {
	return Config{
		Preprocess: DefaultPreprocess(),
		OCR: OCR{
			Languages: []string{"eng"},
		},
		Workers:   runtime.NumCPU(),
		LogLevel:  "info",
		LogFormat: LogFormatConsole,
	}
}

// LoadFile overlays the YAML document at path on top of Default.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r on top of Default. Unknown keys are rejected.
func Decode(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, processing.InvalidConfiguration("parse yaml: %v", err)
	}
	return cfg, nil
}

// Validate checks every stage parameter and the ambient settings.
func (c Config) Validate() error {
	if err := c.Preprocess.Validate(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return processing.InvalidConfiguration("workers must be at least 1, got %d", c.Workers)
	}
	switch strings.ToLower(c.LogFormat) {
	case LogFormatConsole, LogFormatJSON:
	default:
		return processing.InvalidConfiguration("unknown log format %q", c.LogFormat)
	}
	if c.OCR.PageSegMode < 0 || c.OCR.PageSegMode > 13 {
		return processing.InvalidConfiguration("page segmentation mode must be in [0, 13], got %d", c.OCR.PageSegMode)
	}
	if c.OCR.DPI < 0 {
		return processing.InvalidConfiguration("dpi must not be negative, got %d", c.OCR.DPI)
	}
	return nil
}

// Validate checks each stage the same way the stage itself will.
func (p Preprocess) Validate() error {
	checks := []interface{ Validate() error }{
		filters.NewDeskew(p.Deskew.Epsilon, p.Deskew.DarkForeground),
		filters.NewCLAHEFilter(p.CLAHE.ClipLimit, p.CLAHE.TileGrid),
		filters.NewAdaptiveThreshold(p.Threshold.BlockSize, p.Threshold.Offset),
		&filters.MorphGradient{Shape: p.Morphology.Shape, Size: p.Morphology.Size, Iterations: p.Morphology.Iterations},
		filters.NewMedianFilter(p.Median.KernelSize),
	}
	for _, c := range checks {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}
