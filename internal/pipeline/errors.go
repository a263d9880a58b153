package pipeline

import "errors"

var (
	// ErrRecognition wraps failures of the text recognizer. The prepared
	// image was fine; the engine could not read it.
	ErrRecognition = errors.New("recognition failed")

	// ErrArtifact wraps failures to persist a prepared image. It is reported
	// alongside a successful run, never instead of one.
	ErrArtifact = errors.New("artifact write failed")
)
