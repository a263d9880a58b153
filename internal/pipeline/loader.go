package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"os"
	"path/filepath"
	"strings"

	"part-identifier/internal/debug/timing"
	"part-identifier/internal/logger"
	"part-identifier/internal/opencv/conversion"
	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type imageLoader struct {
	logger        logger.Logger
	timingTracker *timing.Tracker
}

// NewLoader returns an ImageLoader backed by OpenCV codecs. Data OpenCV
// cannot decode is retried with the Go codecs (gif, bmp, tiff, webp). Decoded
// images are 8-bit BGR, or single-channel for grayscale Go decodes.
func NewLoader(log logger.Logger, tracker *timing.Tracker) ImageLoader {
	if log == nil {
		log = logger.Nop()
	}
	return &imageLoader{logger: log, timingTracker: tracker}
}

func (l *imageLoader) LoadFile(path string) (*ImageData, error) {
	span := l.startTiming("load_file")
	defer l.endTiming(span)

	info, err := os.Stat(path)
	if err != nil {
		return nil, processing.InvalidImage(fmt.Errorf("stat %s: %w", path, err))
	}
	if info.IsDir() {
		return nil, processing.InvalidImage(fmt.Errorf("%s is a directory", path))
	}

	l.logger.Debug("ImageLoader", "loading image", map[string]interface{}{
		"path":       path,
		"size_bytes": info.Size(),
	})

	format := determineFormat(filepath.Ext(path))
	data, err := l.wrap(gocv.IMRead(path, gocv.IMReadColor), format)
	if err != nil {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, processing.InvalidImage(fmt.Errorf("read %s: %w", path, readErr))
		}
		if data, err = l.decodeFallback(raw, format, err); err != nil {
			return nil, processing.InvalidImage(fmt.Errorf("decode %s: %w", path, err))
		}
	}
	data.Path = path

	l.logLoaded(data)
	return data, nil
}

func (l *imageLoader) LoadBytes(data []byte, format string) (*ImageData, error) {
	span := l.startTiming("load_bytes")
	defer l.endTiming(span)

	if len(data) == 0 {
		return nil, processing.InvalidImage(fmt.Errorf("no image data"))
	}

	format = determineFormat(format)
	var imageData *ImageData
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		mat.Close()
	} else {
		imageData, err = l.wrap(mat, format)
	}
	if err != nil {
		if imageData, err = l.decodeFallback(data, format, err); err != nil {
			return nil, processing.InvalidImage(fmt.Errorf("decode: %w", err))
		}
	}

	l.logLoaded(imageData)
	return imageData, nil
}

// wrap takes ownership of mat.
func (l *imageLoader) wrap(mat gocv.Mat, format string) (*ImageData, error) {
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("unsupported or corrupt image")
	}

	safeMat, err := safe.Adopt(mat, processing.StateLoaded.String())
	if err != nil {
		return nil, err
	}
	return describe(safeMat, format), nil
}

// decodeFallback decodes raw with the Go image codecs. When they fail too,
// cause, the OpenCV error, is returned.
func (l *imageLoader) decodeFallback(raw []byte, format string, cause error) (*ImageData, error) {
	img, codec, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, cause
	}

	safeMat, err := conversion.ImageToMat(img, processing.StateLoaded.String())
	if err != nil {
		return nil, err
	}

	l.logger.Debug("ImageLoader", "decoded with Go codec", map[string]interface{}{
		"codec": codec,
	})
	if format == "unknown" {
		format = determineFormat(codec)
	}
	return describe(safeMat, format), nil
}

func describe(m *safe.Mat, format string) *ImageData {
	return &ImageData{
		Mat:      m,
		Width:    m.Width(),
		Height:   m.Height(),
		Channels: m.Channels(),
		Format:   format,
	}
}

func (l *imageLoader) logLoaded(d *ImageData) {
	l.logger.Info("ImageLoader", "image loaded", map[string]interface{}{
		"width":    d.Width,
		"height":   d.Height,
		"channels": d.Channels,
		"format":   d.Format,
	})
}

func (l *imageLoader) startTiming(op string) timing.Span {
	if l.timingTracker == nil {
		return timing.Span{}
	}
	return l.timingTracker.StartTiming(op)
}

func (l *imageLoader) endTiming(span timing.Span) {
	if l.timingTracker != nil {
		l.timingTracker.EndTiming(span)
	}
}

// determineFormat normalizes a file extension or format name.
func determineFormat(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "tiff", "tif":
		return "tiff"
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "bmp":
		return "bmp"
	case "webp":
		return "webp"
	case "":
		return "unknown"
	default:
		return strings.TrimPrefix(strings.ToLower(ext), ".")
	}
}
