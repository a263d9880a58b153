package filters

import (
	"testing"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestGrayscaleConvertsBGR(t *testing.T) {
	red := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 12, 20, gocv.MatTypeCV8UC3)
	src, err := safe.Adopt(red, "red")
	require.NoError(t, err)
	defer src.Close()

	out, err := NewGrayscaleConverter().Apply(src)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 1, out.Channels())
	assert.Equal(t, 20, out.Width())
	assert.Equal(t, 12, out.Height())

	v, err := out.GetUCharAt(5, 5)
	require.NoError(t, err)
	assert.InDelta(t, 76, int(v), 1)
}

func TestGrayscaleConvertsBGRA(t *testing.T) {
	white := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 255), 4, 4, gocv.MatTypeCV8UC4)
	src, err := safe.Adopt(white, "white")
	require.NoError(t, err)
	defer src.Close()

	out, err := NewGrayscaleConverter().Apply(src)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 1, out.Channels())
	v, _ := out.GetUCharAt(0, 0)
	assert.Equal(t, uint8(255), v)
}

func TestGrayscaleCopiesSingleChannel(t *testing.T) {
	src := patterned(t, 16, 9)

	out, err := NewGrayscaleConverter().Apply(src)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, src.Bytes(), out.Bytes())
	assert.NotEqual(t, src.ID(), out.ID())
}

func TestGrayscaleRejectsMalformedInput(t *testing.T) {
	g := NewGrayscaleConverter()

	_, err := g.Apply(nil)
	assert.ErrorIs(t, err, processing.ErrInvalidImage)

	closed := newGray(t, 4, 4, 0)
	closed.Close()
	_, err = g.Apply(closed)
	assert.ErrorIs(t, err, processing.ErrInvalidImage)

	twoChannel, err := safe.NewMat(4, 4, gocv.MatTypeCV8UC2)
	require.NoError(t, err)
	defer twoChannel.Close()
	_, err = g.Apply(twoChannel)
	assert.ErrorIs(t, err, processing.ErrInvalidImage)

	float, err := safe.NewMat(4, 4, gocv.MatTypeCV32FC3)
	require.NoError(t, err)
	defer float.Close()
	_, err = g.Apply(float)
	assert.ErrorIs(t, err, processing.ErrInvalidImage)
}
