package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/go-nms/benchmark"
	"github.com/nvr-ai/go-nms/nms"
)

func main() {
	var (
		configFile   = flag.String("config", "", "Path to an NMS configuration file (.yaml, .yml, .json) whose operator parameters apply to every scenario")
		scenarioFile = flag.String("scenarios", "", "Path to scenario configuration file")
		outputDir    = flag.String("output", "./benchmark_results", "Output directory for results")
		quick        = flag.Bool("quick", false, "Run quick benchmark scenarios")
		sorters      = flag.Bool("sorters", false, "Compare argsort implementations")
		scaling      = flag.Bool("scaling", false, "Compare cooperative block sizes")
		batchSize    = flag.Int("batch", 8, "Batch size for sorter comparison scenarios")
		anchors      = flag.Int("anchors", 8400, "Anchors per image for sorter and scaling scenarios")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout duration")
	)
	flag.Parse()

	suite := benchmark.NewSuite(*outputDir)

	var override *nms.Params
	if *configFile != "" {
		config, err := nms.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		override = &config.Params
	}

	add := func(set *benchmark.ScenarioSet) {
		for _, scenario := range set.Scenarios {
			if override != nil {
				scenario.Config.Params = *override
			}
			suite.AddScenario(scenario)
		}
		fmt.Printf("Added %d scenarios from %q\n", len(set.Scenarios), set.Name)
	}

	predefined := &benchmark.PredefinedScenarios{}
	if *scenarioFile != "" {
		scenarioSet, err := benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			log.Fatalf("Failed to load scenario file: %v", err)
		}
		add(scenarioSet)
	} else {
		if *quick {
			add(predefined.GetQuickScenarios())
		}
		if *sorters {
			add(predefined.GetSorterComparisonScenarios(*batchSize, *anchors))
		}
		if *scaling {
			add(predefined.GetScalingScenarios(*anchors))
		}

		// If no specific scenarios requested, use quick by default
		if !*quick && !*sorters && !*scaling {
			add(predefined.GetQuickScenarios())
		}
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("Starting benchmark execution...")
	start := time.Now()

	if err := suite.RunAllScenarios(ctx); err != nil {
		log.Fatalf("Benchmark execution failed: %v", err)
	}

	fmt.Printf("Benchmark completed in %v\n", time.Since(start))

	// Print summary
	results := suite.GetResults()
	fmt.Printf("\n=== BENCHMARK RESULTS SUMMARY ===\n")
	fmt.Printf("Total scenarios: %d\n", len(results))
	fmt.Printf("Results saved to: %s\n", *outputDir)

	var bestRate float64
	var bestScenario string
	for _, result := range results {
		if result.BoxesPerSecond > bestRate {
			bestRate = result.BoxesPerSecond
			bestScenario = result.Scenario.Name
		}
		fmt.Printf("  %s: %.2f runs/s, %.0f boxes/s (%.2f MB memory)\n",
			result.Scenario.Name,
			result.RunsPerSecond,
			result.BoxesPerSecond,
			float64(result.MemoryStats.AllocBytes)/(1024*1024))
		for _, stage := range result.Stages {
			fmt.Printf("      %-16s mean=%v min=%v max=%v\n", stage.Name, stage.Mean, stage.Min, stage.Max)
		}
	}

	fmt.Printf("\nBest performing scenario: %s (%.0f boxes/s)\n", bestScenario, bestRate)
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "Benchmark tool for non-maximum suppression throughput.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -quick\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  %s -sorters -batch 16 -anchors 25200\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "  %s -config ./nms.yaml -scenarios ./scenarios.yaml\n", filepath.Base(os.Args[0]))
	}
}
