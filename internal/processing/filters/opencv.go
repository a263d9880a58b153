package filters

import (
	"fmt"

	"part-identifier/internal/opencv/safe"
	"part-identifier/internal/processing"
)

// checked hands dst back when the OpenCV call that filled it succeeded.
// On failure dst is closed so a half-written buffer never leaves the stage.
func checked(dst *safe.Mat, op string, err error) (*safe.Mat, error) {
	if err != nil {
		dst.Close()
		return nil, processing.InvalidImage(fmt.Errorf("%s: %w", op, err))
	}
	return dst, nil
}
