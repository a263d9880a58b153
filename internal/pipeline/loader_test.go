package pipeline

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"

	"part-identifier/internal/debug/timing"
	"part-identifier/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"golang.org/x/image/bmp"
)

func TestLoadFile(t *testing.T) {
	path := writeLabel(t, "label.png")
	tracker := timing.NewTracker()

	data, err := NewLoader(nil, tracker).LoadFile(path)
	require.NoError(t, err)
	defer data.Close()

	assert.Equal(t, 224, data.Width)
	assert.Equal(t, 224, data.Height)
	assert.Equal(t, 3, data.Channels)
	assert.Equal(t, "png", data.Format)
	assert.Equal(t, path, data.Path)
	assert.Equal(t, processing.StateLoaded.String(), data.Mat.Tag())
	assert.Len(t, tracker.Summary(), 1)
}

func TestLoadFileRejectsMissingAndCorruptFiles(t *testing.T) {
	loader := NewLoader(nil, nil)

	_, err := loader.LoadFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, processing.ErrInvalidImage)

	corrupt := filepath.Join(t.TempDir(), "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o644))
	_, err = loader.LoadFile(corrupt)
	assert.ErrorIs(t, err, processing.ErrInvalidImage)

	_, err = loader.LoadFile(t.TempDir())
	assert.ErrorIs(t, err, processing.ErrInvalidImage)
}

func TestLoadBytes(t *testing.T) {
	label := newLabel(t)
	buf, err := gocv.IMEncode(gocv.PNGFileExt, label.GetMat())
	require.NoError(t, err)
	defer buf.Close()

	data, err := NewLoader(nil, nil).LoadBytes(buf.GetBytes(), ".PNG")
	require.NoError(t, err)
	defer data.Close()

	assert.Equal(t, "png", data.Format)
	assert.Equal(t, label.Bytes(), data.Mat.Bytes())
}

func TestLoadBytesRejectsGarbage(t *testing.T) {
	loader := NewLoader(nil, nil)

	_, err := loader.LoadBytes(nil, "png")
	assert.ErrorIs(t, err, processing.ErrInvalidImage)

	_, err = loader.LoadBytes([]byte{0x00, 0x01, 0x02, 0x03}, "png")
	assert.ErrorIs(t, err, processing.ErrInvalidImage)
}

func TestDecodeFallbackUsesGoCodecs(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetNRGBA(2, 1, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))

	l := NewLoader(nil, nil).(*imageLoader)
	data, err := l.decodeFallback(buf.Bytes(), "unknown", errors.New("opencv"))
	require.NoError(t, err)
	defer data.Close()

	assert.Equal(t, 4, data.Width)
	assert.Equal(t, 3, data.Height)
	assert.Equal(t, 3, data.Channels)
	assert.Equal(t, "bmp", data.Format)
	assert.Equal(t, processing.StateLoaded.String(), data.Mat.Tag())

	pix := data.Mat.Bytes()
	at := (1*4 + 2) * 3
	assert.Equal(t, []byte{0, 0, 255}, pix[at:at+3], "BGR order")
}

func TestDecodeFallbackReportsCause(t *testing.T) {
	cause := errors.New("opencv: cannot decode")
	l := NewLoader(nil, nil).(*imageLoader)

	_, err := l.decodeFallback([]byte("not an image"), "png", cause)
	assert.Same(t, cause, err)
}

// GIF decodes either through OpenCV or through the Go codecs, depending on
// how OpenCV was built; both paths yield a BGR buffer.
func TestLoadFileDecodesGIF(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 16, 8), color.Palette{color.White, color.Black})
	img.SetColorIndex(3, 4, 1)
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	path := filepath.Join(t.TempDir(), "label.gif")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	data, err := NewLoader(nil, nil).LoadFile(path)
	require.NoError(t, err)
	defer data.Close()

	assert.Equal(t, 16, data.Width)
	assert.Equal(t, 8, data.Height)
	assert.Equal(t, 3, data.Channels)
	assert.Equal(t, "gif", data.Format)
}

func TestDetermineFormat(t *testing.T) {
	cases := map[string]string{
		".tif":  "tiff",
		"TIFF":  "tiff",
		".jpg":  "jpeg",
		"jpeg":  "jpeg",
		".png":  "png",
		".bmp":  "bmp",
		".webp": "webp",
		"":      "unknown",
		".pgm":  "pgm",
	}
	for in, want := range cases {
		assert.Equal(t, want, determineFormat(in), in)
	}
}
