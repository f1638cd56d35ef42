package nms

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-nms/kernel"
)

// BatchFromDense wraps a [batch, anchors, elem] dense tensor as a Batch
// without copying. Views are materialized first.
//
// Arguments:
//   - t: A 3-D tensor whose dtype matches T.
//
// Returns:
//   - *Batch[T]: A batch sharing t's backing array.
//   - error: ErrShapeMismatch or ErrUnsupportedDtype (wrapped).
func BatchFromDense[T kernel.Float](t *tensor.Dense) (*Batch[T], error) {
	shape := t.Shape()
	if len(shape) != 3 {
		return nil, errors.Wrapf(ErrShapeMismatch, "boxes must be [batch, anchors, elem], got %v", shape)
	}
	if t.IsView() {
		materialized, ok := t.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.New("failed to materialize box tensor view")
		}
		t = materialized
	}
	data, ok := t.Data().([]T)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedDtype, "boxes dtype %v", t.Dtype())
	}
	return &Batch[T]{
		Data:       data,
		BatchSize:  shape[0],
		NumAnchors: shape[1],
		ElemLength: shape[2],
	}, nil
}

// ToDense wraps the batch in a dense tensor sharing its backing array.
func (b *Batch[T]) ToDense() *tensor.Dense {
	return tensor.New(
		tensor.WithShape(b.BatchSize, b.NumAnchors, b.ElemLength),
		tensor.WithBacking(b.Data),
	)
}

// int32FromDense returns the backing array of an int32 tensor with the
// expected shape.
func int32FromDense(name string, t *tensor.Dense, shape ...int) ([]int32, error) {
	if t.Dtype() != tensor.Int32 {
		return nil, errors.Wrapf(ErrUnsupportedDtype, "%s must be int32, got %v", name, t.Dtype())
	}
	if !t.Shape().Eq(tensor.Shape(shape)) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s must have shape %v, got %v", name, shape, t.Shape())
	}
	if t.IsView() {
		materialized, ok := t.Materialize().(*tensor.Dense)
		if !ok {
			return nil, errors.Errorf("failed to materialize %s view", name)
		}
		t = materialized
	}
	return t.Data().([]int32), nil
}

// GetValidCountsTensor is GetValidCounts at the tensor boundary.
//
// Arguments:
//   - data: Boxes, [batch, anchors, elem], Float32 or Float64.
//   - config: Pipeline configuration; ScoreThreshold, IDIndex and ScoreIndex
//     are used.
//
// Returns:
//   - validCount: Int32 [batch].
//   - out: Packed boxes, same shape and dtype as data.
//   - outIndices: Int32 [batch, anchors] input anchor per packed slot.
//   - err: Error for unsupported dtypes, shapes or parameters.
func GetValidCountsTensor(data *tensor.Dense, config Config) (validCount, out, outIndices *tensor.Dense, err error) {
	switch data.Dtype() {
	case tensor.Float32:
		return getValidCountsDense[float32](data, config)
	case tensor.Float64:
		return getValidCountsDense[float64](data, config)
	default:
		return nil, nil, nil, errors.Wrapf(ErrUnsupportedDtype, "boxes dtype %v", data.Dtype())
	}
}

func getValidCountsDense[T kernel.Float](data *tensor.Dense, config Config) (validCount, out, outIndices *tensor.Dense, err error) {
	batch, err := BatchFromDense[T](data)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := NewPipeline[T](config)
	if err != nil {
		return nil, nil, nil, err
	}
	vc, err := p.GetValidCounts(batch)
	if err != nil {
		return nil, nil, nil, err
	}
	validCount = tensor.New(tensor.WithShape(batch.BatchSize), tensor.WithBacking(vc.Count))
	outIndices = tensor.New(tensor.WithShape(batch.BatchSize, batch.NumAnchors), tensor.WithBacking(vc.Indices))
	return validCount, vc.Boxes.ToDense(), outIndices, nil
}

// NonMaxSuppressionTensor is NonMaxSuppression at the tensor boundary.
//
// With config.ReturnIndices the result is [box_indices, num_valid_boxes]:
// Int32 [batch, anchors] and Int32 [batch]. Otherwise it is [out], the
// reordered and suppressed boxes with data's shape and dtype.
//
// Arguments:
//   - data: Boxes, [batch, anchors, elem], Float32 or Float64.
//   - validCount: Int32 [batch].
//   - indices: Int32 [batch, anchors].
//   - config: Pipeline configuration.
//
// Returns:
//   - []*tensor.Dense: The operator outputs.
//   - error: Error for unsupported dtypes, shapes or parameters.
func NonMaxSuppressionTensor(data, validCount, indices *tensor.Dense, config Config) ([]*tensor.Dense, error) {
	switch data.Dtype() {
	case tensor.Float32:
		return nonMaxSuppressionDense[float32](data, validCount, indices, config)
	case tensor.Float64:
		return nonMaxSuppressionDense[float64](data, validCount, indices, config)
	default:
		return nil, errors.Wrapf(ErrUnsupportedDtype, "boxes dtype %v", data.Dtype())
	}
}

func nonMaxSuppressionDense[T kernel.Float](data, validCount, indices *tensor.Dense, config Config) ([]*tensor.Dense, error) {
	batch, err := BatchFromDense[T](data)
	if err != nil {
		return nil, err
	}
	vc, err := int32FromDense("valid_count", validCount, batch.BatchSize)
	if err != nil {
		return nil, err
	}
	idx, err := int32FromDense("indices", indices, batch.BatchSize, batch.NumAnchors)
	if err != nil {
		return nil, err
	}

	p, err := NewPipeline[T](config)
	if err != nil {
		return nil, err
	}
	out, err := p.NonMaxSuppression(batch, vc, idx)
	if err != nil {
		return nil, err
	}

	if config.ReturnIndices {
		return []*tensor.Dense{
			tensor.New(tensor.WithShape(batch.BatchSize, batch.NumAnchors), tensor.WithBacking(out.BoxIndices)),
			tensor.New(tensor.WithShape(batch.BatchSize), tensor.WithBacking(out.NumValidBoxes)),
		}, nil
	}
	return []*tensor.Dense{out.Boxes.ToDense()}, nil
}
