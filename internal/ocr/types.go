// Package ocr defines the contract between the preprocessing pipeline and a
// text recognition engine.
package ocr

import (
	"context"
	"errors"
	"strings"
)

// ElectronicsChars is the character set printed on component labels.
// Lowercase is excluded to reduce 0/O and 1/I confusion.
const ElectronicsChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-/"

// ErrEmptyInput is returned for an Input without image data.
var ErrEmptyInput = errors.New("ocr input has no image data")

type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Region is a rectangle in pixel coordinates, origin top-left.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is one prepared image submitted for recognition.
type Input struct {
	// ID is echoed back in Result.InputID.
	ID string
	// Image is the encoded payload in Format.
	Image  []byte
	Format ImageFormat
	Width  int
	Height int

	DPI       int
	Languages []string
	// PageSegMode is a Tesseract PSM value; 0 keeps the engine default.
	PageSegMode int
	// Whitelist restricts recognized characters. Empty allows all.
	Whitelist string
	// Variables passes engine-specific settings through unchanged.
	Variables map[string]string
}

func (in Input) Validate() error {
	if len(in.Image) == 0 {
		return ErrEmptyInput
	}
	return nil
}

type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Result is the recognition output for one Input.
type Result struct {
	InputID string
	Text    string
	Words   []Word
	// Confidence is the mean word confidence in [0, 1].
	Confidence float64
	Language   string
}

// Engine recognizes text in a single prepared image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// NormalizeText trims the engine output and collapses runs of whitespace,
// including line breaks, into single spaces.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// MeanConfidence averages word confidences; zero words yields zero.
func MeanConfidence(words []Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

// Bounds returns the smallest region covering every word.
func Bounds(words []Word) Region {
	if len(words) == 0 {
		return Region{}
	}
	minX, minY := words[0].Bounds.X, words[0].Bounds.Y
	maxX, maxY := minX+words[0].Bounds.Width, minY+words[0].Bounds.Height
	for _, w := range words[1:] {
		minX = min(minX, w.Bounds.X)
		minY = min(minY, w.Bounds.Y)
		maxX = max(maxX, w.Bounds.X+w.Bounds.Width)
		maxY = max(maxY, w.Bounds.Y+w.Bounds.Height)
	}
	return Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
