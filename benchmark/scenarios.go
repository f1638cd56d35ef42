package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-nms/nms"
	"github.com/nvr-ai/go-nms/sorter"
)

// Scenario defines a specific test configuration: the shape of a synthetic
// scene and how the pipeline is configured to process it.
type Scenario struct {
	Name       string `json:"name"        yaml:"name"`
	BatchSize  int    `json:"batch_size"  yaml:"batch_size"`
	NumAnchors int    `json:"num_anchors" yaml:"num_anchors"`
	NumClasses int    `json:"num_classes" yaml:"num_classes"`
	// Seed makes the generated scene reproducible.
	Seed       int64      `json:"seed"        yaml:"seed"`
	Config     nms.Config `json:"config"      yaml:"config"`
	Iterations int        `json:"iterations"  yaml:"iterations"`
	WarmupRuns int        `json:"warmup_runs" yaml:"warmup_runs"`
}

// ScenarioBuilder helps build test scenarios with fluent API
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:       name,
			BatchSize:  1,
			NumAnchors: 1000,
			NumClasses: 80,
			Seed:       1,
			Config:     nms.DefaultConfig(),
			Iterations: 100,
			WarmupRuns: 10,
		},
	}
}

// WithScene sets the batch size, anchor and class counts
func (sb *ScenarioBuilder) WithScene(batchSize, numAnchors, numClasses int) *ScenarioBuilder {
	sb.scenario.BatchSize = batchSize
	sb.scenario.NumAnchors = numAnchors
	sb.scenario.NumClasses = numClasses
	return sb
}

// WithSeed sets the scene seed
func (sb *ScenarioBuilder) WithSeed(seed int64) *ScenarioBuilder {
	sb.scenario.Seed = seed
	return sb
}

// WithSorter sets the argsort implementation
func (sb *ScenarioBuilder) WithSorter(kind sorter.Kind) *ScenarioBuilder {
	sb.scenario.Config.Sorter = kind
	return sb
}

// WithThreads sets the threads per block and per cooperative block
func (sb *ScenarioBuilder) WithThreads(maxThreads, blockThreads int) *ScenarioBuilder {
	sb.scenario.Config.MaxThreads = maxThreads
	sb.scenario.Config.BlockThreads = blockThreads
	return sb
}

// WithWorkers sets how many blocks run at once
func (sb *ScenarioBuilder) WithWorkers(workers int) *ScenarioBuilder {
	sb.scenario.Config.Workers = workers
	return sb
}

// WithParams replaces the operator parameters
func (sb *ScenarioBuilder) WithParams(params nms.Params) *ScenarioBuilder {
	sb.scenario.Config.Params = params
	return sb
}

// WithIterations sets the number of test iterations
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// Build returns the configured test scenario
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// PredefinedScenarios contains common benchmark scenario sets
type PredefinedScenarios struct{}

// GetQuickScenarios returns a smaller set for quick testing
func (ps *PredefinedScenarios) GetQuickScenarios() *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, anchors := range []int{1000, 8400} {
		scenario := NewScenarioBuilder(fmt.Sprintf("quick_%d", anchors)).
			WithScene(1, anchors, 80).
			WithIterations(20).
			WithWarmupRuns(2).
			Build()

		scenarios = append(scenarios, scenario)
	}

	return &ScenarioSet{
		Name:        "Quick Performance Test",
		Description: "Single image scenes at two detection head sizes",
		Scenarios:   scenarios,
	}
}

// GetSorterComparisonScenarios runs the same scene through every sorter
func (ps *PredefinedScenarios) GetSorterComparisonScenarios(batchSize, numAnchors int) *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, kind := range sorter.Available() {
		scenario := NewScenarioBuilder(fmt.Sprintf("sorter_%s_%dx%d", kind, batchSize, numAnchors)).
			WithScene(batchSize, numAnchors, 80).
			WithSorter(kind).
			Build()

		scenarios = append(scenarios, scenario)
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Sorter Comparison - %dx%d", batchSize, numAnchors),
		Description: "Compares argsort implementations on the same scene",
		Scenarios:   scenarios,
	}
}

// GetScalingScenarios varies the cooperative block size used by suppression
func (ps *PredefinedScenarios) GetScalingScenarios(numAnchors int) *ScenarioSet {
	scenarios := make([]Scenario, 0)

	for _, blockThreads := range []int{1, 2, 4, 8, 16, 32} {
		scenario := NewScenarioBuilder(fmt.Sprintf("scaling_%d_threads_%d", numAnchors, blockThreads)).
			WithScene(1, numAnchors, 1).
			WithThreads(256, blockThreads).
			Build()

		scenarios = append(scenarios, scenario)
	}

	return &ScenarioSet{
		Name:        fmt.Sprintf("Block Scaling - %d anchors", numAnchors),
		Description: "Single class scene suppressed with increasing cooperative block sizes",
		Scenarios:   scenarios,
	}
}

// SaveScenarioSet saves a scenario set to a JSON or YAML file
func SaveScenarioSet(scenarioSet *ScenarioSet, filename string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(scenarioSet)
	} else {
		data, err = json.MarshalIndent(scenarioSet, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal scenario set")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write scenario file")
	}

	return nil
}

// LoadScenarioSet loads a scenario set from a JSON or YAML file
func LoadScenarioSet(filename string) (*ScenarioSet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}

	var scenarioSet ScenarioSet
	if isYAML(filename) {
		err = yaml.Unmarshal(data, &scenarioSet)
	} else {
		err = json.Unmarshal(data, &scenarioSet)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal scenario set")
	}

	return &scenarioSet, nil
}

func isYAML(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".yaml" || ext == ".yml"
}
