package pipeline

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"

	"part-identifier/internal/ocr"
	"part-identifier/internal/opencv/safe"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// labelRect is the dark bar drawn on every synthetic label.
var labelRect = image.Rect(40, 107, 184, 117)

// newLabel returns a 224x224 white BGR image with a black labelRect.
func newLabel(t *testing.T) *safe.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 224, 224, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&m, image.Rect(labelRect.Min.X, labelRect.Min.Y, labelRect.Max.X-1, labelRect.Max.Y-1), color.RGBA{A: 255}, -1)
	out, err := safe.Adopt(m, "label")
	require.NoError(t, err)
	t.Cleanup(out.Close)
	return out
}

// writeLabel stores a synthetic label as PNG and returns its path.
func writeLabel(t *testing.T, name string) string {
	t.Helper()
	label := newLabel(t)
	path := filepath.Join(t.TempDir(), name)
	require.True(t, gocv.IMWrite(path, label.GetMat()))
	return path
}

// newPatterned returns a deterministic non-trivial gray image.
func newPatterned(t *testing.T, rows, cols int) *safe.Mat {
	t.Helper()
	m, err := safe.NewTaggedMat(rows, cols, gocv.MatTypeCV8UC1, "patterned")
	require.NoError(t, err)
	t.Cleanup(m.Close)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := uint8((x*37 + y*11 + (x*y)%23) % 256)
			require.NoError(t, m.SetUCharAt(y, x, v))
		}
	}
	return m
}

type fakeRecognizer struct {
	mu     sync.Mutex
	text   string
	err    error
	inputs []ocr.Input
}

func (f *fakeRecognizer) Name() string { return "fake" }

func (f *fakeRecognizer) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{InputID: in.ID, Text: f.text, Confidence: 0.9}, nil
}

func (f *fakeRecognizer) calls() []ocr.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ocr.Input(nil), f.inputs...)
}
