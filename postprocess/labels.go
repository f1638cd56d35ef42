package postprocess

import (
	"strconv"

	"github.com/pkg/errors"
)

// ErrUnknownLabel is returned when a class index or name is not in a LabelSet.
var ErrUnknownLabel = errors.New("unknown label")

// LabelSet maps class indices emitted by a model to human-readable names.
type LabelSet struct {
	names     []string
	nameToIdx map[string]int
}

// NewLabelSet builds a LabelSet where names[i] is the label of class i.
func NewLabelSet(names ...string) *LabelSet {
	s := &LabelSet{names: names, nameToIdx: make(map[string]int, len(names))}
	for i, n := range names {
		s.nameToIdx[n] = i
	}
	return s
}

// Len returns the number of classes.
func (s *LabelSet) Len() int { return len(s.names) }

// Name returns the label of class idx.
func (s *LabelSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.names) {
		return "", errors.Wrapf(ErrUnknownLabel, "index %d out of range [0,%d)", idx, len(s.names))
	}
	return s.names[idx], nil
}

// Index returns the class index of name.
func (s *LabelSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownLabel, "name %q", name)
	}
	return idx, nil
}

// Label returns the name of r's class, or "class_<n>" when labels does not
// cover it.
func (r Result) Label(labels *LabelSet) string {
	if labels != nil {
		if name, err := labels.Name(r.Class); err == nil {
			return name
		}
	}
	return "class_" + strconv.Itoa(r.Class)
}

// COCOLabels are the 80 COCO classes in the zero-based order YOLO models emit.
var COCOLabels = NewLabelSet(
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase",
	"frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich",
	"orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
)
