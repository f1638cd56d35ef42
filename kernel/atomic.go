package kernel

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrUnsupportedDtype is returned when a primitive has no implementation for a
// scalar type.
var ErrUnsupportedDtype = errors.New("unsupported dtype")

// AddFunc atomically adds delta to backing[i] and returns the new value.
// backing must be the slice type matching the dtype the func was built for.
type AddFunc func(backing interface{}, i int, delta float64) float64

// AtomicAdd returns the atomic accumulation primitive for dt.
//
// Only int32, float32 and float64 are supported; any other dtype fails here,
// before a kernel using the primitive is launched.
//
// Arguments:
//   - dt: The element type of the buffer that will be accumulated into.
//
// Returns:
//   - AddFunc: The accumulation primitive.
//   - error: ErrUnsupportedDtype (wrapped) for other dtypes.
//
// @example
//
//	add, err := kernel.AtomicAdd(tensor.Int32)
//	if err != nil {
//	    return err
//	}
//	add(counts, row, 1)
func AtomicAdd(dt tensor.Dtype) (AddFunc, error) {
	switch dt {
	case tensor.Int32:
		return addInt32, nil
	case tensor.Float32:
		return addFloat32, nil
	case tensor.Float64:
		return addFloat64, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedDtype, "atomic add: only int32, float32 and float64 are supported, got %v", dt)
	}
}

func addInt32(backing interface{}, i int, delta float64) float64 {
	s := backing.([]int32)
	return float64(atomic.AddInt32(&s[i], int32(delta)))
}

func addFloat32(backing interface{}, i int, delta float64) float64 {
	s := backing.([]float32)
	addr := (*uint32)(unsafe.Pointer(&s[i]))
	for {
		old := atomic.LoadUint32(addr)
		next := math.Float32frombits(old) + float32(delta)
		if atomic.CompareAndSwapUint32(addr, old, math.Float32bits(next)) {
			return float64(next)
		}
	}
}

func addFloat64(backing interface{}, i int, delta float64) float64 {
	s := backing.([]float64)
	addr := (*uint64)(unsafe.Pointer(&s[i]))
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return next
		}
	}
}
