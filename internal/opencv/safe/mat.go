package safe

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Mat is an owned image buffer. Each pipeline stage produces a fresh Mat and
// the consumer that receives it is responsible for closing it.
type Mat struct {
	mat     gocv.Mat
	isValid int32
	id      uint64
	tag     string
}

var nextMatID uint64

// AllocationTracker observes buffer lifetimes, for leak diagnostics.
type AllocationTracker interface {
	TrackAllocation(id uint64, size int64, tag string)
	TrackDeallocation(id uint64, tag string)
}

type trackerHolder struct{ t AllocationTracker }

var allocationTracker atomic.Pointer[trackerHolder]

// SetAllocationTracker installs t for every Mat created or closed from now
// on. A nil t disables tracking.
func SetAllocationTracker(t AllocationTracker) {
	if t == nil {
		allocationTracker.Store(nil)
		return
	}
	allocationTracker.Store(&trackerHolder{t: t})
}

func currentTracker() AllocationTracker {
	if h := allocationTracker.Load(); h != nil {
		return h.t
	}
	return nil
}

// NewMat allocates an uninitialized buffer of the given size and type.
func NewMat(rows, cols int, matType gocv.MatType) (*Mat, error) {
	return NewTaggedMat(rows, cols, matType, "")
}

// NewTaggedMat is NewMat with a tag used in log output and error messages.
func NewTaggedMat(rows, cols int, matType gocv.MatType, tag string) (*Mat, error) {
	if err := ValidateDimensions(cols, rows, "NewMat"); err != nil {
		return nil, err
	}

	mat := gocv.NewMatWithSize(rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to create Mat with size %dx%d", cols, rows)
	}

	return wrap(mat, tag), nil
}

// NewMatFromMat copies srcMat into a new owned buffer. The caller keeps
// ownership of srcMat.
func NewMatFromMat(srcMat gocv.Mat, tag string) (*Mat, error) {
	if srcMat.Empty() {
		return nil, fmt.Errorf("source Mat is empty")
	}

	if srcMat.Rows() <= 0 || srcMat.Cols() <= 0 {
		return nil, fmt.Errorf("source Mat has invalid dimensions: %dx%d", srcMat.Cols(), srcMat.Rows())
	}

	clonedMat := srcMat.Clone()
	if clonedMat.Empty() {
		clonedMat.Close()
		return nil, fmt.Errorf("failed to clone Mat")
	}

	return wrap(clonedMat, tag), nil
}

// Adopt takes ownership of m without copying. m must not be closed by the
// caller afterwards.
func Adopt(m gocv.Mat, tag string) (*Mat, error) {
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("cannot adopt empty Mat")
	}
	return wrap(m, tag), nil
}

func wrap(m gocv.Mat, tag string) *Mat {
	sm := &Mat{
		mat:     m,
		isValid: 1,
		id:      atomic.AddUint64(&nextMatID, 1),
		tag:     tag,
	}

	if t := currentTracker(); t != nil {
		t.TrackAllocation(sm.id, sizeBytes(m), tag)
	}

	// Last-resort release if Close is never called.
	runtime.SetFinalizer(sm, (*Mat).finalize)

	return sm
}

func (sm *Mat) IsValid() bool {
	return sm != nil && atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	if !sm.IsValid() {
		return true
	}
	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Cols()
}

// Width is the number of pixel columns.
func (sm *Mat) Width() int { return sm.Cols() }

// Height is the number of pixel rows.
func (sm *Mat) Height() int { return sm.Rows() }

func (sm *Mat) Channels() int {
	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Channels()
}

// Depth returns the bit depth of a single sample.
func (sm *Mat) Depth() int {
	if !sm.IsValid() {
		return 0
	}
	return depthBits(sm.mat.Type())
}

func (sm *Mat) Type() gocv.MatType {
	if !sm.IsValid() {
		return gocv.MatTypeCV8UC1
	}
	return sm.mat.Type()
}

func (sm *Mat) Tag() string { return sm.tag }

func (sm *Mat) ID() uint64 { return sm.id }

// Clone returns an independent deep copy.
func (sm *Mat) Clone() (*Mat, error) {
	if !sm.IsValid() {
		return nil, fmt.Errorf("cannot clone invalid Mat")
	}
	if sm.mat.Empty() {
		return nil, fmt.Errorf("cannot clone empty Mat")
	}
	return NewMatFromMat(sm.mat, sm.tag)
}

// WithTag returns sm after replacing its tag.
func (sm *Mat) WithTag(tag string) *Mat {
	sm.tag = tag
	return sm
}

// GetMat exposes the underlying gocv.Mat for OpenCV calls. The returned value
// shares storage with sm and must not be closed.
func (sm *Mat) GetMat() gocv.Mat {
	return sm.mat
}

func (sm *Mat) GetUCharAt(row, col int) (uint8, error) {
	if !sm.IsValid() {
		return 0, fmt.Errorf("Mat is invalid")
	}
	if err := ValidateCoordinates(row, col, sm.mat.Rows(), sm.mat.Cols(), "GetUCharAt"); err != nil {
		return 0, err
	}
	return sm.mat.GetUCharAt(row, col), nil
}

func (sm *Mat) SetUCharAt(row, col int, value uint8) error {
	if !sm.IsValid() {
		return fmt.Errorf("Mat is invalid")
	}
	if err := ValidateCoordinates(row, col, sm.mat.Rows(), sm.mat.Cols(), "SetUCharAt"); err != nil {
		return err
	}
	sm.mat.SetUCharAt(row, col, value)
	return nil
}

// Bytes returns a copy of the pixel data in row-major order.
func (sm *Mat) Bytes() []byte {
	if !sm.IsValid() || sm.mat.Empty() {
		return nil
	}
	src := sm.mat
	if !src.IsContinuous() {
		cont := src.Clone()
		defer cont.Close()
		src = cont
	}
	data := src.ToBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func (sm *Mat) Close() {
	if sm == nil {
		return
	}
	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		sm.mat.Close()
		runtime.SetFinalizer(sm, nil)
		if t := currentTracker(); t != nil {
			t.TrackDeallocation(sm.id, sm.tag)
		}
	}
}

func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}

func depthBits(matType gocv.MatType) int {
	switch int(matType) & 7 {
	case 0, 1:
		return 8
	case 2, 3:
		return 16
	case 4, 5:
		return 32
	case 6:
		return 64
	default:
		return 0
	}
}

func sizeBytes(m gocv.Mat) int64 {
	return int64(m.Rows()) * int64(m.Cols()) * int64(m.Channels()) * int64(depthBits(m.Type())/8)
}
