package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"part-identifier/internal/processing"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "PARTID_"

// LoadDotEnv loads the first existing file of paths into the process
// environment without overriding variables that are already set. Missing
// files are not an error.
func LoadDotEnv(paths ...string) (string, error) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return "", fmt.Errorf("load %s: %w", p, err)
		}
		return p, nil
	}
	return "", nil
}

// ApplyEnv overrides cfg with PARTID_* variables from the process environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

// ApplyEnvMap overrides cfg from a map, for example one read with
// godotenv.Read.
func (c *Config) ApplyEnvMap(values map[string]string) error {
	return c.applyEnv(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.int("WORKERS", &c.Workers)
	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("LOG_FORMAT", &c.LogFormat)

	p := &c.Preprocess
	e.float("SKEW_EPSILON", &p.Deskew.Epsilon)
	e.bool("DARK_FOREGROUND", &p.Deskew.DarkForeground)
	e.float("CLAHE_CLIP_LIMIT", &p.CLAHE.ClipLimit)
	e.int("CLAHE_TILE_GRID", &p.CLAHE.TileGrid)
	e.int("THRESHOLD_BLOCK_SIZE", &p.Threshold.BlockSize)
	e.float("THRESHOLD_OFFSET", &p.Threshold.Offset)
	e.str("MORPH_SHAPE", &p.Morphology.Shape)
	e.int("MORPH_SIZE", &p.Morphology.Size)
	e.int("MORPH_ITERATIONS", &p.Morphology.Iterations)
	e.int("MEDIAN_KERNEL_SIZE", &p.Median.KernelSize)

	o := &c.OCR
	e.list("OCR_LANGUAGES", &o.Languages)
	e.int("OCR_PSM", &o.PageSegMode)
	e.str("OCR_WHITELIST", &o.Whitelist)
	e.int("OCR_DPI", &o.DPI)
	e.str("TESSDATA_PREFIX", &o.TessdataPrefix)

	return e.err
}

// envReader records the first parse failure and skips the rest.
type envReader struct {
	lookup lookupFunc
	err    error
}

func (e *envReader) get(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envReader) fail(name, value string, err error) {
	e.err = processing.InvalidConfiguration("%s%s=%q: %v", EnvPrefix, name, value, err)
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) int(name string, dst *int) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(name string, dst *float64) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = f
}

func (e *envReader) bool(name string, dst *bool) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return
	}
	*dst = b
}

func (e *envReader) list(name string, dst *[]string) {
	v, ok := e.get(name)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	*dst = items
}
