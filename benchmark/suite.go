package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-nms/nms"
)

// Suite manages and executes benchmark scenarios
type Suite struct {
	scenarios []Scenario
	outputDir string
	mu        sync.RWMutex
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - outputDir: Directory SaveResults writes to.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(outputDir string) *Suite {
	return &Suite{
		outputDir: outputDir,
		scenarios: make([]Scenario, 0),
		results:   make([]PerformanceMetrics, 0),
	}
}

// AddScenario adds a test scenario to the benchmark suite
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// RunScenario executes a single benchmark scenario.
//
// Arguments:
//   - ctx: Cancels the run between iterations.
//   - scenario: The scenario to run.
//
// Returns:
//   - *PerformanceMetrics: Timings, throughput and memory use of the run.
//   - error: Error if the pipeline cannot be built or ctx is done.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	config := scenario.Config
	config.Profile = true
	pipeline, err := nms.NewPipeline[float32](config)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", scenario.Name)
	}
	scene := GenerateScene(scenario)

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: time.Now(),
	}

	// Warmup runs
	for i := 0; i < scenario.WarmupRuns; i++ {
		if _, err := pipeline.Run(scene); err != nil {
			continue // Skip warmup errors
		}
	}

	// Capture initial memory stats
	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	startTime := time.Now()
	kept := 0
	failures := 0

	// Run benchmark iterations
	for i := 0; i < scenario.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := pipeline.Run(scene)
		if err != nil {
			failures++
			continue
		}
		kept = int(out.TotalKept)
	}

	totalDuration := time.Since(startTime)

	// Capture final memory stats
	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	// Calculate metrics
	metrics.TotalDuration = totalDuration
	if scenario.Iterations > 0 && totalDuration > 0 {
		metrics.RunsPerSecond = float64(scenario.Iterations) / totalDuration.Seconds()
		metrics.BoxesPerSecond = metrics.RunsPerSecond * float64(scene.Anchors())
		metrics.ErrorRate = float64(failures) / float64(scenario.Iterations)
	}
	metrics.KeptCount = kept
	metrics.Stages = pipeline.Stats()

	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}

	metrics.CPUStats = CPUMetrics{
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
	}

	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.Lock()
	scenarios := make([]Scenario, len(bs.scenarios))
	copy(scenarios, bs.scenarios)
	bs.mu.Unlock()

	for _, scenario := range scenarios {
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			log.Printf("❌ Scenario %s failed: %v", scenario.Name, err)
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		log.Printf("✅ Scenario %s completed: %.2f runs/s, %.0f boxes/s, kept %d",
			scenario.Name, metrics.RunsPerSecond, metrics.BoxesPerSecond, metrics.KeptCount)
	}

	return bs.SaveResults()
}

// SaveResults persists benchmark results to filesystem
func (bs *Suite) SaveResults() error {
	results := bs.GetResults()

	// Ensure output directory exists
	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	// Save detailed results as JSON
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal results")
	}

	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write results file")
	}

	// Save summary CSV
	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := bs.saveSummaryCSV(summaryFile, results); err != nil {
		return errors.Wrap(err, "failed to save summary CSV")
	}

	log.Printf("📊 Results saved to: %s", resultsFile)
	log.Printf("📊 Summary saved to: %s", summaryFile)

	return nil
}

func (bs *Suite) saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	// Write CSV header
	header := "Scenario,Batch,Anchors,Sorter,Block_Threads,Runs_Per_Second,Boxes_Per_Second,Total_Duration_ms,Avg_Memory_MB,Kept,Error_Rate\n"
	if _, err := file.WriteString(header); err != nil {
		return err
	}

	// Write data rows
	for _, result := range results {
		avgMemoryMB := float64(result.MemoryStats.AllocBytes) / (1024 * 1024)
		line := fmt.Sprintf("%s,%d,%d,%s,%d,%.2f,%.0f,%.2f,%.2f,%d,%.4f\n",
			result.Scenario.Name,
			result.Scenario.BatchSize,
			result.Scenario.NumAnchors,
			result.Scenario.Config.Sorter,
			result.Scenario.Config.BlockThreads,
			result.RunsPerSecond,
			result.BoxesPerSecond,
			float64(result.TotalDuration.Nanoseconds())/1e6,
			avgMemoryMB,
			result.KeptCount,
			result.ErrorRate,
		)
		if _, err := file.WriteString(line); err != nil {
			return err
		}
	}

	return nil
}

// GetResults returns all benchmark results
func (bs *Suite) GetResults() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}
