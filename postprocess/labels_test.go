package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelSet(t *testing.T) {
	assert.Equal(t, 80, COCOLabels.Len())

	name, err := COCOLabels.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "person", name)

	name, err = COCOLabels.Name(79)
	require.NoError(t, err)
	assert.Equal(t, "toothbrush", name)

	idx, err := COCOLabels.Index("dog")
	require.NoError(t, err)
	assert.Equal(t, 16, idx)

	_, err = COCOLabels.Name(80)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	_, err = COCOLabels.Name(-1)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	_, err = COCOLabels.Index("unicorn")
	assert.ErrorIs(t, err, ErrUnknownLabel)
}

func TestResult_Label(t *testing.T) {
	labels := NewLabelSet("cat", "dog")

	assert.Equal(t, "dog", Result{Class: 1}.Label(labels))
	assert.Equal(t, "class_7", Result{Class: 7}.Label(labels))
	assert.Equal(t, "class_2", Result{Class: 2}.Label(nil))
}
