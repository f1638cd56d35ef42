// Package graphop exposes the NMS operators as gorgonia graph operations so
// that a detector graph can end in suppression and run on a TapeMachine.
//
// Gorgonia operations have one output each. GetValidCounts therefore yields
// three nodes, each computing one of the operator's outputs. NonMaxSuppression
// yields the box indices and the kept counts as two nodes when
// Config.ReturnIndices is set, and the box buffer otherwise.
package graphop

import (
	"fmt"
	"hash"
	"hash/fnv"

	"github.com/chewxy/hm"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-nms/nms"
)

// ErrBadInput is returned when an operation receives the wrong number or kind
// of inputs.
var ErrBadInput = errors.New("bad graph op input")

// validCountsOutput selects which output of GetValidCounts an op produces.
type validCountsOutput int

const (
	outValidCount validCountsOutput = iota
	outPacked
	outIndices
)

func (o validCountsOutput) String() string {
	switch o {
	case outValidCount:
		return "valid_count"
	case outPacked:
		return "packed"
	default:
		return "indices"
	}
}

// suppressionOutput selects which output of NonMaxSuppression an op produces.
type suppressionOutput int

const (
	outResult suppressionOutput = iota
	outNumValidBoxes
)

func (o suppressionOutput) String() string {
	if o == outNumValidBoxes {
		return "num_valid_boxes"
	}
	return "result"
}

// boxesType is a 3-D tensor of any float type.
func boxesType() hm.Type {
	return G.TensorType{Dims: 3, Of: hm.TypeVariable('a')}
}

func int32Type(dims int) hm.Type {
	return G.TensorType{Dims: dims, Of: tensor.Int32}
}

// GetValidCounts adds the valid-box filter and compaction to data's graph.
//
// Arguments:
//   - data: A [batch, anchors, elem] Float32 or Float64 node.
//   - config: Operator configuration; ScoreThreshold, IDIndex and ScoreIndex
//     are used.
//
// Returns:
//   - validCount: Int32 [batch].
//   - packed: Packed boxes with data's shape.
//   - indices: Int32 [batch, anchors].
//   - err: Error if the ops cannot be applied to data.
//
// @example
//
//	g := G.NewGraph()
//	boxes := G.NewTensor(g, tensor.Float32, 3, G.WithShape(1, 100, 6), G.WithName("boxes"))
//	vc, packed, idx, err := graphop.GetValidCounts(boxes, nms.DefaultConfig())
//	keep, kept, err := graphop.NonMaxSuppression(packed, vc, idx, nms.DefaultConfig())
func GetValidCounts(data *G.Node, config nms.Config) (validCount, packed, indices *G.Node, err error) {
	if validCount, err = G.ApplyOp(&getValidCountsOp{config: config, output: outValidCount}, data); err != nil {
		return nil, nil, nil, errors.Wrap(err, "valid_count")
	}
	if packed, err = G.ApplyOp(&getValidCountsOp{config: config, output: outPacked}, data); err != nil {
		return nil, nil, nil, errors.Wrap(err, "packed boxes")
	}
	if indices, err = G.ApplyOp(&getValidCountsOp{config: config, output: outIndices}, data); err != nil {
		return nil, nil, nil, errors.Wrap(err, "indices")
	}
	return validCount, packed, indices, nil
}

// NonMaxSuppression adds suppression to the graph.
//
// Returns:
//   - result: With config.ReturnIndices the Int32 [batch, anchors] box
//     indices, otherwise the reordered and suppressed boxes.
//   - numValidBoxes: Int32 [batch] kept counts; nil unless
//     config.ReturnIndices is set.
//   - err: Error if the op cannot be applied to the inputs.
func NonMaxSuppression(data, validCount, indices *G.Node, config nms.Config) (result, numValidBoxes *G.Node, err error) {
	if result, err = G.ApplyOp(&nonMaxSuppressionOp{config: config, output: outResult}, data, validCount, indices); err != nil {
		return nil, nil, errors.Wrap(err, "non_max_suppression")
	}
	if !config.ReturnIndices {
		return result, nil, nil
	}
	if numValidBoxes, err = G.ApplyOp(&nonMaxSuppressionOp{config: config, output: outNumValidBoxes}, data, validCount, indices); err != nil {
		return nil, nil, errors.Wrap(err, "num_valid_boxes")
	}
	return result, numValidBoxes, nil
}

type getValidCountsOp struct {
	config nms.Config
	output validCountsOutput
}

func (op *getValidCountsOp) Arity() int { return 1 }

func (op *getValidCountsOp) Type() hm.Type {
	switch op.output {
	case outValidCount:
		return hm.NewFnType(boxesType(), int32Type(1))
	case outPacked:
		return hm.NewFnType(boxesType(), boxesType())
	default:
		return hm.NewFnType(boxesType(), int32Type(2))
	}
}

func (op *getValidCountsOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	shape, err := boxesShape(inputs)
	if err != nil {
		return nil, err
	}
	switch op.output {
	case outValidCount:
		return tensor.Shape{shape[0]}, nil
	case outPacked:
		return shape.Clone(), nil
	default:
		return tensor.Shape{shape[0], shape[1]}, nil
	}
}

func (op *getValidCountsOp) Do(values ...G.Value) (G.Value, error) {
	if len(values) != 1 {
		return nil, errors.Wrapf(ErrBadInput, "%v expects 1 input, got %d", op, len(values))
	}
	data, err := dense(values[0], "boxes")
	if err != nil {
		return nil, err
	}
	validCount, packed, indices, err := nms.GetValidCountsTensor(data, op.config)
	if err != nil {
		return nil, errors.Wrapf(err, "%v", op)
	}
	switch op.output {
	case outValidCount:
		return validCount, nil
	case outPacked:
		return packed, nil
	default:
		return indices, nil
	}
}

func (op *getValidCountsOp) ReturnsPtr() bool     { return false }
func (op *getValidCountsOp) CallsExtern() bool    { return false }
func (op *getValidCountsOp) OverwritesInput() int { return -1 }

func (op *getValidCountsOp) WriteHash(h hash.Hash) {
	fmt.Fprintf(h, "%v", op)
}

func (op *getValidCountsOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op *getValidCountsOp) String() string {
	return fmt.Sprintf("GetValidCounts{%s, score>%v, id=%d, score=%d}",
		op.output, op.config.ScoreThreshold, op.config.IDIndex, op.config.ScoreIndex)
}

type nonMaxSuppressionOp struct {
	config nms.Config
	output suppressionOutput
}

func (op *nonMaxSuppressionOp) Arity() int { return 3 }

func (op *nonMaxSuppressionOp) Type() hm.Type {
	out := boxesType()
	switch {
	case op.output == outNumValidBoxes:
		out = int32Type(1)
	case op.config.ReturnIndices:
		out = int32Type(2)
	}
	return hm.NewFnType(boxesType(), int32Type(1), int32Type(2), out)
}

func (op *nonMaxSuppressionOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	if len(inputs) != 3 {
		return nil, errors.Wrapf(ErrBadInput, "%v expects 3 inputs, got %d", op, len(inputs))
	}
	shape, err := boxesShape(inputs[:1])
	if err != nil {
		return nil, err
	}
	switch {
	case op.output == outNumValidBoxes:
		return tensor.Shape{shape[0]}, nil
	case op.config.ReturnIndices:
		return tensor.Shape{shape[0], shape[1]}, nil
	default:
		return shape.Clone(), nil
	}
}

func (op *nonMaxSuppressionOp) Do(values ...G.Value) (G.Value, error) {
	if len(values) != 3 {
		return nil, errors.Wrapf(ErrBadInput, "%v expects 3 inputs, got %d", op, len(values))
	}
	data, err := dense(values[0], "boxes")
	if err != nil {
		return nil, err
	}
	validCount, err := dense(values[1], "valid_count")
	if err != nil {
		return nil, err
	}
	indices, err := dense(values[2], "indices")
	if err != nil {
		return nil, err
	}

	outs, err := nms.NonMaxSuppressionTensor(data, validCount, indices, op.config)
	if err != nil {
		return nil, errors.Wrapf(err, "%v", op)
	}
	if op.output == outNumValidBoxes {
		if len(outs) < 2 {
			return nil, errors.Wrapf(ErrBadInput, "%v needs return_indices", op)
		}
		return outs[1], nil
	}
	return outs[0], nil
}

func (op *nonMaxSuppressionOp) ReturnsPtr() bool     { return false }
func (op *nonMaxSuppressionOp) CallsExtern() bool    { return false }
func (op *nonMaxSuppressionOp) OverwritesInput() int { return -1 }

func (op *nonMaxSuppressionOp) WriteHash(h hash.Hash) {
	fmt.Fprintf(h, "%v", op)
}

func (op *nonMaxSuppressionOp) Hashcode() uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

func (op *nonMaxSuppressionOp) String() string {
	p := op.config.Params
	return fmt.Sprintf("NonMaxSuppression{%s, iou=%v, force=%t, top_k=%d, max_out=%d, indices=%t, id=%d, score=%d, coord=%d}",
		op.output, p.IoUThreshold, p.ForceSuppress, p.TopK, p.MaxOutputSize, p.ReturnIndices, p.IDIndex, p.ScoreIndex, p.CoordStart)
}

func boxesShape(inputs []G.DimSizer) (tensor.Shape, error) {
	if len(inputs) != 1 {
		return nil, errors.Wrapf(ErrBadInput, "expected boxes shape, got %d inputs", len(inputs))
	}
	shape, ok := inputs[0].(tensor.Shape)
	if !ok || len(shape) != 3 {
		return nil, errors.Wrapf(nms.ErrShapeMismatch, "boxes must be [batch, anchors, elem], got %v", inputs[0])
	}
	return shape, nil
}

func dense(v G.Value, name string) (*tensor.Dense, error) {
	t, ok := v.(*tensor.Dense)
	if !ok {
		return nil, errors.Wrapf(ErrBadInput, "%s must be a dense tensor, got %T", name, v)
	}
	return t, nil
}
