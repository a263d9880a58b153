package pipeline

import (
	"context"
	"io"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/ocr"
)

// ImageLoader decodes raster images into owned buffers.
type ImageLoader interface {
	LoadFile(path string) (*ImageData, error)
	LoadBytes(data []byte, format string) (*ImageData, error)
}

// ImageSaver encodes buffers for persistence and for the recognizer.
type ImageSaver interface {
	SaveToPath(path string, mat *safe.Mat) error
	SaveToWriter(w io.Writer, mat *safe.Mat, format string) error
	EncodePNG(mat *safe.Mat) ([]byte, error)
}

// Recognizer is the text recognition collaborator.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error)
}

// ImageData is a decoded image and where it came from. Mat is owned by the
// holder of the ImageData.
type ImageData struct {
	Mat      *safe.Mat
	Width    int
	Height   int
	Channels int
	Format   string
	Path     string
}

func (d *ImageData) Close() {
	if d != nil {
		d.Mat.Close()
	}
}
