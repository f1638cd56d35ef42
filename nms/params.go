package nms

import "github.com/pkg/errors"

var (
	// ErrInvalidParams is returned when a field offset or option cannot be
	// applied to the box layout.
	ErrInvalidParams = errors.New("invalid nms parameters")
	// ErrShapeMismatch is returned when buffers disagree on batch or anchor
	// counts.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Params are the per-call options of the operators.
type Params struct {
	// ScoreThreshold is the lower, exclusive, score limit for valid boxes.
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
	// IDIndex is the class id field; negative disables class handling.
	IDIndex int `json:"id_index" yaml:"id_index"`
	// ScoreIndex is the score field.
	ScoreIndex int `json:"score_index" yaml:"score_index"`
	// CoordStart is the first of the four consecutive coordinate fields.
	CoordStart int `json:"coord_start" yaml:"coord_start"`
	// IoUThreshold suppresses boxes overlapping a kept box at least this much.
	// Zero or less skips suppression and keeps no boxes.
	IoUThreshold float64 `json:"iou_threshold" yaml:"iou_threshold"`
	// ForceSuppress compares boxes regardless of class.
	ForceSuppress bool `json:"force_suppress" yaml:"force_suppress"`
	// TopK limits how many of the best boxes enter suppression; <= 0 is no limit.
	TopK int `json:"top_k" yaml:"top_k"`
	// MaxOutputSize caps the kept boxes per row; <= 0 is no limit.
	MaxOutputSize int `json:"max_output_size" yaml:"max_output_size"`
	// ReturnIndices selects box indices and counts as the operator result
	// instead of the box buffer.
	ReturnIndices bool `json:"return_indices" yaml:"return_indices"`
}

// DefaultParams returns the operator defaults: records laid out as
// [class_id, score, x1, y1, x2, y2], IoU threshold 0.5, no limits.
func DefaultParams() Params {
	return Params{
		ScoreThreshold: 0,
		IDIndex:        0,
		ScoreIndex:     1,
		CoordStart:     2,
		IoUThreshold:   0.5,
		ForceSuppress:  false,
		TopK:           -1,
		MaxOutputSize:  -1,
		ReturnIndices:  true,
	}
}

// Validate checks the field offsets against a record length.
//
// Arguments:
//   - elemLength: Number of fields per box record.
//
// Returns:
//   - error: ErrInvalidParams (wrapped) describing the first bad offset.
func (p Params) Validate(elemLength int) error {
	if p.ScoreIndex < 0 || p.ScoreIndex >= elemLength {
		return errors.Wrapf(ErrInvalidParams, "score_index %d out of range for elem_length %d", p.ScoreIndex, elemLength)
	}
	if p.IDIndex >= elemLength {
		return errors.Wrapf(ErrInvalidParams, "id_index %d out of range for elem_length %d", p.IDIndex, elemLength)
	}
	if p.CoordStart < 0 || p.CoordStart+4 > elemLength {
		return errors.Wrapf(ErrInvalidParams, "coord_start %d needs 4 fields within elem_length %d", p.CoordStart, elemLength)
	}
	return nil
}

// suppressing reports whether a row with validCount boxes goes through
// suppression; otherwise it is passed through unchanged.
func (p Params) suppressing(validCount int) bool {
	return p.IoUThreshold > 0 && validCount > 0
}

// keep returns how many of a row's best boxes enter suppression.
func (p Params) keep(validCount int) int {
	if p.TopK > 0 && p.TopK < validCount {
		return p.TopK
	}
	return validCount
}
