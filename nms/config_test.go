package nms

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-nms/sorter"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 0.5, config.IoUThreshold)
	assert.Equal(t, 0, config.IDIndex)
	assert.Equal(t, 1, config.ScoreIndex)
	assert.Equal(t, 2, config.CoordStart)
	assert.Equal(t, -1, config.TopK)
	assert.Equal(t, -1, config.MaxOutputSize)
	assert.True(t, config.ReturnIndices)
	assert.False(t, config.ForceSuppress)
	assert.Equal(t, sorter.KindStable, config.Sorter)
	assert.NoError(t, config.Validate(6))
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "nms.yaml", `
iou_threshold: 0.45
score_threshold: 0.25
top_k: 100
force_suppress: true
sorter: radix
block_threads: 8
debug: true
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.45, config.IoUThreshold)
	assert.Equal(t, 0.25, config.ScoreThreshold)
	assert.Equal(t, 100, config.TopK)
	assert.True(t, config.ForceSuppress)
	assert.Equal(t, sorter.KindRadix, config.Sorter)
	assert.Equal(t, 8, config.BlockThreads)
	assert.True(t, config.Debug)

	// Untouched fields keep their defaults.
	assert.Equal(t, 1, config.ScoreIndex)
	assert.Equal(t, -1, config.MaxOutputSize)
	assert.True(t, config.ReturnIndices)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfig(t, "nms.json", `{
  "id_index": -1,
  "score_index": 0,
  "coord_start": 1,
  "max_output_size": 10,
  "return_indices": false,
  "workers": 2
}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, -1, config.IDIndex)
	assert.Equal(t, 0, config.ScoreIndex)
	assert.Equal(t, 1, config.CoordStart)
	assert.Equal(t, 10, config.MaxOutputSize)
	assert.False(t, config.ReturnIndices)
	assert.Equal(t, 2, config.Workers)
	assert.Equal(t, 0.5, config.IoUThreshold)
	assert.NoError(t, config.Validate(5))
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "nms.toml", "iou_threshold = 0.5"))
		assert.ErrorContains(t, err, "unsupported config format")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "nms.yml", "iou_threshold: [0.5"))
		assert.ErrorContains(t, err, "failed to parse yaml config")
	})

	t.Run("unknown sorter", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "nms.yaml", "sorter: bitonic\n"))
		assert.ErrorIs(t, err, sorter.ErrUnknownSorter)
	})
}

func TestConfig_Validate(t *testing.T) {
	config := DefaultConfig()
	assert.ErrorIs(t, config.Validate(5), ErrInvalidParams, "coordinates need fields 2..5")

	config.IDIndex = -1
	config.ScoreIndex = 0
	config.CoordStart = 1
	assert.NoError(t, config.Validate(5))

	config.MaxThreads = -4
	assert.ErrorIs(t, config.Validate(5), ErrInvalidParams)
}
