package pipeline

import (
	"testing"

	"part-identifier/internal/opencv/safe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestCalculateBinaryMetrics(t *testing.T) {
	m, err := safe.NewMat(4, 5, gocv.MatTypeCV8UC1)
	require.NoError(t, err)
	defer m.Close()
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			v := uint8(0)
			if y == 0 {
				v = 255
			}
			require.NoError(t, m.SetUCharAt(y, x, v))
		}
	}

	got, err := CalculateBinaryMetrics(m)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ForegroundPixels)
	assert.Equal(t, 20, got.TotalPixels)
	assert.InDelta(t, 0.25, got.ForegroundRatio, 1e-12)
	assert.Equal(t, "0.2500", got.Fields()["foreground_ratio"])
}

func TestCalculateBinaryMetricsRejectsColor(t *testing.T) {
	m, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC3)
	require.NoError(t, err)
	defer m.Close()

	_, err = CalculateBinaryMetrics(m)
	assert.Error(t, err)
}
