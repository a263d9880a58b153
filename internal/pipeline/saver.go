package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"part-identifier/internal/debug/timing"
	"part-identifier/internal/logger"
	"part-identifier/internal/opencv/conversion"
	"part-identifier/internal/opencv/safe"

	"gocv.io/x/gocv"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const jpegQuality = 95

type imageSaver struct {
	logger        logger.Logger
	timingTracker *timing.Tracker
}

// NewSaver returns an ImageSaver. PNG and JPEG are encoded by OpenCV; TIFF
// and BMP by golang.org/x/image.
func NewSaver(log logger.Logger, tracker *timing.Tracker) ImageSaver {
	if log == nil {
		log = logger.Nop()
	}
	return &imageSaver{logger: log, timingTracker: tracker}
}

// SaveToPath picks the format from the file extension, defaulting to PNG.
// The file is written to a temporary name first so readers never see a
// partial image.
func (s *imageSaver) SaveToPath(path string, mat *safe.Mat) error {
	format := determineFormat(filepath.Ext(path))

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if err := s.SaveToWriter(tmp, mat, format); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", path, err)
	}

	s.logger.Info("ImageSaver", "image saved", map[string]interface{}{
		"path":   path,
		"format": format,
	})
	return nil
}

func (s *imageSaver) SaveToWriter(w io.Writer, mat *safe.Mat, format string) error {
	if err := safe.ValidateMatForOperation(mat, "save"); err != nil {
		return err
	}

	span := s.startTiming("save_" + format)
	defer s.endTiming(span)

	s.logger.Debug("ImageSaver", "encoding image", map[string]interface{}{
		"format": format,
		"width":  mat.Width(),
		"height": mat.Height(),
	})

	var err error
	switch format {
	case "jpeg":
		err = s.encodeOpenCV(w, mat, gocv.JPEGFileExt, int(gocv.IMWriteJpegQuality), jpegQuality)
	case "tiff", "bmp":
		err = s.encodeGo(w, mat, format)
	case "png":
		err = s.encodeOpenCV(w, mat, gocv.PNGFileExt)
	default:
		s.logger.Warning("ImageSaver", "format not supported, using PNG", map[string]interface{}{
			"requested_format": format,
		})
		err = s.encodeOpenCV(w, mat, gocv.PNGFileExt)
	}

	if err != nil {
		s.logger.Error("ImageSaver", err, map[string]interface{}{"format": format})
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

// EncodePNG returns the lossless encoding handed to the recognizer.
func (s *imageSaver) EncodePNG(mat *safe.Mat) ([]byte, error) {
	if err := safe.ValidateMatForOperation(mat, "encode png"); err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat.GetMat())
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

func (s *imageSaver) encodeOpenCV(w io.Writer, mat *safe.Mat, ext gocv.FileExt, params ...int) error {
	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if len(params) > 0 {
		buf, err = gocv.IMEncodeWithParams(ext, mat.GetMat(), params)
	} else {
		buf, err = gocv.IMEncode(ext, mat.GetMat())
	}
	if err != nil {
		return err
	}
	defer buf.Close()

	_, err = w.Write(buf.GetBytes())
	return err
}

// encodeGo covers the formats OpenCV builds do not reliably ship.
func (s *imageSaver) encodeGo(w io.Writer, mat *safe.Mat, format string) error {
	img, err := conversion.MatToImage(mat)
	if err != nil {
		return err
	}
	if format == "bmp" {
		return bmp.Encode(w, img)
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

func (s *imageSaver) startTiming(op string) timing.Span {
	if s.timingTracker == nil {
		return timing.Span{}
	}
	return s.timingTracker.StartTiming(op)
}

func (s *imageSaver) endTiming(span timing.Span) {
	if s.timingTracker != nil {
		s.timingTracker.EndTiming(span)
	}
}
