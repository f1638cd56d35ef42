package nms

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-nms/kernel"
	"github.com/nvr-ai/go-nms/sorter"
)

// Config configures a Pipeline: the operator parameters plus how kernels are
// scheduled.
type Config struct {
	Params `yaml:",inline"`

	// Sorter selects the argsort implementation.
	Sorter sorter.Kind `json:"sorter" yaml:"sorter"`
	// MaxThreads is the number of threads per block of data-parallel launches.
	MaxThreads int `json:"max_threads" yaml:"max_threads"`
	// BlockThreads is the number of goroutines cooperating on one row during
	// suppression. 0 uses one per CPU.
	BlockThreads int `json:"block_threads" yaml:"block_threads"`
	// Workers bounds how many blocks run at once. 0 uses one per CPU.
	Workers int `json:"workers" yaml:"workers"`
	// Debug logs pipeline construction and per-run stage timings.
	Debug bool `json:"debug" yaml:"debug"`
	// Profile records per-stage timings, see Pipeline.Stats.
	Profile bool `json:"profile" yaml:"profile"`
}

// DefaultConfig returns DefaultParams with the stable sorter and automatic
// scheduling.
//
// Returns:
//   - Config: Configuration with the operator defaults
//
// @example
// config := DefaultConfig()
// config.IoUThreshold = 0.45
// pipeline, err := NewPipeline[float32](config)
func DefaultConfig() Config {
	return Config{
		Params:     DefaultParams(),
		Sorter:     sorter.KindStable,
		MaxThreads: kernel.DefaultMaxThreads,
	}
}

// Validate checks the parameters against a record length and the sorter kind.
func (c Config) Validate(elemLength int) error {
	if err := c.Params.Validate(elemLength); err != nil {
		return err
	}
	return c.validateScheduling()
}

func (c Config) validateScheduling() error {
	known := false
	for _, k := range sorter.Available() {
		if c.Sorter == k {
			known = true
		}
	}
	if !known && c.Sorter != "" {
		return errors.Wrapf(sorter.ErrUnknownSorter, "sorter kind %q", c.Sorter)
	}
	if c.MaxThreads < 0 || c.BlockThreads < 0 || c.Workers < 0 {
		return errors.Wrapf(ErrInvalidParams, "negative scheduling value: max_threads=%d block_threads=%d workers=%d",
			c.MaxThreads, c.BlockThreads, c.Workers)
	}
	return nil
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON (.json) file over
// DefaultConfig, so files only need the fields they change.
//
// Arguments:
//   - path: Path to the configuration file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: Error if the file cannot be read or parsed.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrap(err, "failed to read config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, errors.Wrap(err, "failed to parse yaml config")
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return config, errors.Wrap(err, "failed to parse json config")
		}
	default:
		return config, errors.Errorf("unsupported config format: %s", path)
	}

	if err := config.validateScheduling(); err != nil {
		return config, err
	}
	return config, nil
}
