// Package benchmark - Functionality for running NMS benchmarks.
package benchmark

import (
	"time"

	"github.com/nvr-ai/go-nms/profiler"
)

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario       Scenario         `json:"scenario"`
	Timestamp      time.Time        `json:"timestamp"`
	TotalDuration  time.Duration    `json:"total_duration"`
	RunsPerSecond  float64          `json:"runs_per_second"`
	BoxesPerSecond float64          `json:"boxes_per_second"`
	Stages         []profiler.Stats `json:"stages"`
	MemoryStats    MemoryMetrics    `json:"memory_stats"`
	CPUStats       CPUMetrics       `json:"cpu_stats"`
	KeptCount      int              `json:"kept_count"`
	ErrorRate      float64          `json:"error_rate"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU     int `json:"num_cpu"`
	GOMAXPROCS int `json:"gomaxprocs"`
}
