package pipeline

import (
	"fmt"

	"part-identifier/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// BinaryMetrics summarizes a prepared binary buffer. A ratio near zero or one
// usually means the photo was blank or the threshold window was wrong.
type BinaryMetrics struct {
	ForegroundPixels int
	TotalPixels      int
	ForegroundRatio  float64
}

// CalculateBinaryMetrics counts foreground pixels in a 1-channel buffer.
func CalculateBinaryMetrics(mat *safe.Mat) (BinaryMetrics, error) {
	if err := safe.ValidateGray8(mat, "binary metrics calculation"); err != nil {
		return BinaryMetrics{}, err
	}

	total := mat.Rows() * mat.Cols()
	fg := gocv.CountNonZero(mat.GetMat())

	return BinaryMetrics{
		ForegroundPixels: fg,
		TotalPixels:      total,
		ForegroundRatio:  float64(fg) / float64(total),
	}, nil
}

func (m BinaryMetrics) Fields() map[string]interface{} {
	return map[string]interface{}{
		"foreground_pixels": m.ForegroundPixels,
		"total_pixels":      m.TotalPixels,
		"foreground_ratio":  fmt.Sprintf("%.4f", m.ForegroundRatio),
	}
}
