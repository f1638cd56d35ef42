// Package kernel - grid/block/thread execution model for data-parallel kernels.
//
// Kernels are plain Go functions invoked once per logical thread. A launch
// returns only after every thread of every block has finished, so consecutive
// launches are separated by a device-wide barrier. Threads of a cooperative
// launch additionally share a block-scoped barrier reachable through
// ThreadID.Sync.
package kernel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxThreads is the number of threads per block used when no limit is
// configured.
const DefaultMaxThreads = 256

// Dim3 is a three dimensional extent or index.
type Dim3 struct {
	X, Y, Z int
}

// D1 returns a one dimensional extent.
func D1(x int) Dim3 {
	return Dim3{X: x, Y: 1, Z: 1}
}

// D2 returns a two dimensional extent.
func D2(x, y int) Dim3 {
	return Dim3{X: x, Y: y, Z: 1}
}

// Size returns the number of elements covered by the extent.
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

// ThreadID identifies a logical thread inside a launch.
type ThreadID struct {
	BlockIdx  Dim3
	ThreadIdx Dim3
	BlockDim  Dim3
	GridDim   Dim3

	barrier *Barrier
}

// Global returns the thread's linear index along X across the whole grid.
func (t ThreadID) Global() int {
	return t.BlockIdx.X*t.BlockDim.X + t.ThreadIdx.X
}

// Sync blocks until every thread of the block has reached the same point.
// It is a no-op outside cooperative launches, where the threads of a block
// already run one after another.
func (t ThreadID) Sync() {
	if t.barrier != nil {
		t.barrier.Wait()
	}
}

// Device schedules kernel launches over a bounded set of worker goroutines.
type Device struct {
	maxThreads   int
	blockThreads int
	workers      int
}

// Option configures a Device.
type Option func(*Device)

// WithMaxThreads sets the maximum number of threads per block.
func WithMaxThreads(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.maxThreads = n
		}
	}
}

// WithBlockThreads sets the default width of cooperative blocks.
func WithBlockThreads(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.blockThreads = n
		}
	}
}

// WithWorkers sets how many blocks may execute at the same time.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewDevice creates a device. Without options it uses DefaultMaxThreads
// threads per block, one worker per CPU and one cooperative thread per CPU.
//
// Arguments:
//   - opts: Functional options overriding the defaults.
//
// Returns:
//   - *Device: The configured device.
//
// @example
//
//	dev := kernel.NewDevice(kernel.WithMaxThreads(128))
//	dev.Launch(kernel.D2(blocks, rows), kernel.D1(dev.MaxThreads()), fn)
func NewDevice(opts ...Option) *Device {
	d := &Device{
		maxThreads:   DefaultMaxThreads,
		blockThreads: runtime.NumCPU(),
		workers:      runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxThreads returns the maximum number of threads per block.
func (d *Device) MaxThreads() int {
	return d.maxThreads
}

// BlockThreads returns the default number of goroutines per cooperative
// block.
func (d *Device) BlockThreads() int {
	return d.blockThreads
}

// Workers returns the number of blocks that may run concurrently.
func (d *Device) Workers() int {
	return d.workers
}

// Launch runs fn once for every thread of every block in grid.
//
// Blocks are split into contiguous chunks, one chunk per worker. The threads of
// a block run sequentially on the worker that owns the block, so kernels
// launched this way must not call ThreadID.Sync to exchange data between
// threads. Launch returns when all blocks are done.
//
// Arguments:
//   - grid: Number of blocks along each axis.
//   - block: Number of threads per block along each axis.
//   - fn: The kernel body.
func (d *Device) Launch(grid, block Dim3, fn func(ThreadID)) {
	gridSize := grid.Size()
	blockSize := block.Size()
	if gridSize <= 0 || blockSize <= 0 {
		return
	}

	numWorkers := min(d.workers, gridSize)
	blocksPerWorker := (gridSize + numWorkers - 1) / numWorkers

	var g errgroup.Group
	g.SetLimit(numWorkers)
	for start := 0; start < gridSize; start += blocksPerWorker {
		end := min(start+blocksPerWorker, gridSize)
		g.Go(func() error {
			for blockID := start; blockID < end; blockID++ {
				blockIdx := linearTo3D(blockID, grid)
				for threadID := 0; threadID < blockSize; threadID++ {
					fn(ThreadID{
						BlockIdx:  blockIdx,
						ThreadIdx: linearTo3D(threadID, block),
						BlockDim:  block,
						GridDim:   grid,
					})
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// LaunchCooperative runs a kernel whose threads cooperate through
// ThreadID.Sync.
//
// Every thread of a block is its own goroutine and the block's threads share a
// Barrier. Every thread of a block must call Sync the same number of times.
// Blocks are independent and run concurrently, bounded by the worker count.
//
// Arguments:
//   - grid: Number of blocks along each axis.
//   - threads: Number of threads per block (along X).
//   - fn: The kernel body.
func (d *Device) LaunchCooperative(grid Dim3, threads int, fn func(ThreadID)) {
	gridSize := grid.Size()
	if gridSize <= 0 || threads <= 0 {
		return
	}
	block := D1(threads)

	var g errgroup.Group
	g.SetLimit(min(d.workers, gridSize))
	for blockID := 0; blockID < gridSize; blockID++ {
		g.Go(func() error {
			blockIdx := linearTo3D(blockID, grid)
			barrier := NewBarrier(threads)

			var wg sync.WaitGroup
			wg.Add(threads)
			for tx := 0; tx < threads; tx++ {
				go func() {
					defer wg.Done()
					fn(ThreadID{
						BlockIdx:  blockIdx,
						ThreadIdx: D1(tx),
						BlockDim:  block,
						GridDim:   grid,
						barrier:   barrier,
					})
				}()
			}
			wg.Wait()
			return nil
		})
	}
	_ = g.Wait()
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

// linearTo3D converts a linear index to 3D coordinates.
func linearTo3D(linear int, dim Dim3) Dim3 {
	plane := dim.X * dim.Y
	return Dim3{
		X: linear % dim.X,
		Y: (linear % plane) / dim.X,
		Z: linear / plane,
	}
}
