// Package conversion bridges owned OpenCV buffers and the standard image
// types used by encoders that OpenCV does not provide.
package conversion

import (
	"fmt"
	"image"
	"image/draw"

	"part-identifier/internal/opencv/safe"

	"gocv.io/x/gocv"
)

// MatToImage converts an 8-bit Mat to a Go image. Single-channel buffers become
// *image.Gray; BGR and BGRA buffers become *image.NRGBA.
func MatToImage(src *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(src, "Mat to image conversion"); err != nil {
		return nil, err
	}
	if src.Depth() != 8 {
		return nil, fmt.Errorf("unsupported sample depth: %d-bit", src.Depth())
	}

	switch src.Channels() {
	case 1:
		return MatToGray(src)
	case 3, 4:
		return matToNRGBA(src)
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}
}

// MatToGray converts a single-channel 8-bit Mat to *image.Gray.
func MatToGray(src *safe.Mat) (*image.Gray, error) {
	if err := safe.ValidateGray8(src, "Mat to gray conversion"); err != nil {
		return nil, err
	}

	img := image.NewGray(image.Rect(0, 0, src.Cols(), src.Rows()))
	data := src.Bytes()
	if len(data) != len(img.Pix) {
		return nil, fmt.Errorf("pixel buffer has %d bytes, expected %d", len(data), len(img.Pix))
	}
	copy(img.Pix, data)

	return img, nil
}

func matToNRGBA(src *safe.Mat) (*image.NRGBA, error) {
	rows, cols, channels := src.Rows(), src.Cols(), src.Channels()
	data := src.Bytes()
	if len(data) != rows*cols*channels {
		return nil, fmt.Errorf("pixel buffer has %d bytes, expected %d", len(data), rows*cols*channels)
	}

	img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
	for i, j := 0, 0; i < len(data); i, j = i+channels, j+4 {
		img.Pix[j] = data[i+2]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i]
		if channels == 4 {
			img.Pix[j+3] = data[i+3]
		} else {
			img.Pix[j+3] = 255
		}
	}

	return img, nil
}

// ImageToMat converts a Go image to an owned Mat. *image.Gray input yields a
// single-channel buffer; everything else yields BGR.
func ImageToMat(img image.Image, tag string) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if err := safe.ValidateDimensions(width, height, "image to Mat conversion"); err != nil {
		return nil, err
	}

	if gray, ok := img.(*image.Gray); ok {
		pix := make([]byte, 0, width*height)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			start := gray.PixOffset(bounds.Min.X, y)
			pix = append(pix, gray.Pix[start:start+width]...)
		}
		return fromBytes(height, width, gocv.MatTypeCV8UC1, pix, tag)
	}

	rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	bgr := make([]byte, width*height*3)
	for i, j := 0, 0; i < len(rgba.Pix); i, j = i+4, j+3 {
		bgr[j] = rgba.Pix[i+2]
		bgr[j+1] = rgba.Pix[i+1]
		bgr[j+2] = rgba.Pix[i]
	}
	return fromBytes(height, width, gocv.MatTypeCV8UC3, bgr, tag)
}

func fromBytes(rows, cols int, matType gocv.MatType, data []byte, tag string) (*safe.Mat, error) {
	tmp, err := gocv.NewMatFromBytes(rows, cols, matType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create Mat from pixels: %w", err)
	}
	defer tmp.Close()

	// The clone owns its storage, independent of the Go slice.
	return safe.NewMatFromMat(tmp, tag)
}

// Properties summarizes a buffer for log fields.
type Properties struct {
	Width    int
	Height   int
	Channels int
	Depth    int
	Empty    bool
}

func GetMatProperties(mat *safe.Mat) Properties {
	if mat == nil {
		return Properties{Empty: true}
	}
	return Properties{
		Width:    mat.Width(),
		Height:   mat.Height(),
		Channels: mat.Channels(),
		Depth:    mat.Depth(),
		Empty:    mat.Empty(),
	}
}

// Fields renders p as structured log fields.
func (p Properties) Fields() map[string]interface{} {
	return map[string]interface{}{
		"width":    p.Width,
		"height":   p.Height,
		"channels": p.Channels,
		"depth":    p.Depth,
	}
}
