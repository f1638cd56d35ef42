package onnx

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Provider represents an onnxruntime execution provider.
type Provider string

const (
	// CPUExecutionProvider uses the default CPU provider.
	CPUExecutionProvider Provider = "cpu"
	// CUDAExecutionProvider uses NVIDIA CUDA for GPU acceleration.
	CUDAExecutionProvider Provider = "cuda"
	// CoreMLExecutionProvider uses Apple CoreML for macOS/iOS acceleration.
	CoreMLExecutionProvider Provider = "coreml"
	// OpenVINOExecutionProvider uses Intel OpenVINO for inference optimization.
	OpenVINOExecutionProvider Provider = "openvino"
)

// ErrUnknownProvider is returned for provider names that are not supported.
var ErrUnknownProvider = errors.New("unknown execution provider")

// ProviderConfig selects and configures the execution provider of a session.
type ProviderConfig struct {
	// Provider is the execution provider; empty means CPU.
	Provider Provider `json:"provider" yaml:"provider"`
	// DeviceID selects the GPU for CUDA.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// CoreMLFlags are passed to the CoreML provider as is.
	CoreMLFlags uint32 `json:"coreml_flags" yaml:"coreml_flags"`
	// Options are provider specific key/value settings. For CUDA they update
	// the provider options, for OpenVINO they are passed as is.
	Options map[string]string `json:"options" yaml:"options"`
}

// ParseProvider converts a provider name, case insensitive, to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "", CPUExecutionProvider:
		return CPUExecutionProvider, nil
	case CUDAExecutionProvider, CoreMLExecutionProvider, OpenVINOExecutionProvider:
		return p, nil
	default:
		return "", errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
}

// openVINOOptions returns the OpenVINO settings with defaults for the keys the
// caller did not set.
func (c ProviderConfig) openVINOOptions() map[string]string {
	opts := map[string]string{
		"device_type": "CPU",
		"precision":   "FP32",
	}
	for k, v := range c.Options {
		opts[k] = v
	}
	return opts
}

// apply appends the configured execution provider to options.
func (c ProviderConfig) apply(options *ort.SessionOptions) error {
	provider, err := ParseProvider(string(c.Provider))
	if err != nil {
		return err
	}

	switch provider {
	case CUDAExecutionProvider:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA provider options")
		}
		defer cudaOptions.Destroy()

		settings := map[string]string{"device_id": fmt.Sprintf("%d", c.DeviceID)}
		for k, v := range c.Options {
			settings[k] = v
		}
		if err := cudaOptions.Update(settings); err != nil {
			return errors.Wrap(err, "error updating CUDA provider options")
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return errors.Wrap(err, "error enabling CUDA")
		}
	case CoreMLExecutionProvider:
		if err := options.AppendExecutionProviderCoreML(c.CoreMLFlags); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case OpenVINOExecutionProvider:
		if err := options.AppendExecutionProviderOpenVINO(c.openVINOOptions()); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	}
	return nil
}
