// Package benchmarks provides the accuracy benchmark harness for the
// convolution predictor.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/convpred/timing/core"
	"github.com/sarchlab/convpred/timing/predictor"
	"github.com/sarchlab/convpred/trace"
)

// DepthResult holds the branch statistics of one dependence depth.
type DepthResult struct {
	Depth              int     `json:"depth"`
	Branches           uint64  `json:"branches"`
	Mispredictions     uint64  `json:"mispredictions"`
	PenaltyCycles      uint64  `json:"penalty_cycles"`
	MispredictionRatio float64 `json:"misprediction_percent"`
}

// BenchmarkResult holds the results of a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark exercises
	Description string `json:"description"`

	// InstructionsCommitted is the number of committed instructions
	InstructionsCommitted uint64 `json:"instructions_committed"`

	// Flushes is the number of squashed wrong-path instructions
	Flushes uint64 `json:"flushes"`

	// Conditional branch statistics
	Branches        uint64  `json:"branches"`
	Mispredictions  uint64  `json:"mispredictions"`
	AccuracyPercent float64 `json:"accuracy_percent"`
	MPKI            float64 `json:"mpki"`
	PenaltyCycles   uint64  `json:"penalty_cycles"`

	// ReferenceAccuracyPercent is the reference predictor's accuracy
	ReferenceAccuracyPercent float64 `json:"reference_accuracy_percent,omitempty"`

	// Predictor table statistics
	Allocations uint64 `json:"allocations"`
	Promotions  uint64 `json:"promotions"`
	StorageBits int    `json:"storage_bits"`

	// AllocationsByBank and PromotionsByBank break the table activity down
	// by bank. Promotions are counted against the receiving bank.
	AllocationsByBank []uint64 `json:"allocations_by_bank"`
	PromotionsByBank  []uint64 `json:"promotions_by_bank"`

	// ByDepth breaks the branches down by dependence depth
	ByDepth []DepthResult `json:"by_depth"`

	// WallTime is the actual time taken to replay the trace
	WallTime time.Duration `json:"wall_time_ns"`
}

// Benchmark defines a single benchmark workload.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark exercises
	Description string

	// Workload is the synthetic trace to replay
	Workload trace.Workload
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Core configures every core the harness creates (default: core defaults)
	Core *core.Config

	// Parallelism bounds how many benchmarks run at once (default: 1)
	Parallelism int

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Core:        core.DefaultConfig(),
		Parallelism: 1,
		Output:      os.Stdout,
		Verbose:     false,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Core == nil {
		config.Core = core.DefaultConfig()
	}
	if config.Parallelism <= 0 {
		config.Parallelism = 1
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks, each on its own core, and returns results
// in the order the benchmarks were added.
func (h *Harness) RunAll(ctx context.Context) ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, len(h.benchmarks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.config.Parallelism)
	for i, bench := range h.benchmarks {
		g.Go(func() error {
			result, err := h.runBenchmark(ctx, bench)
			if err != nil {
				return fmt.Errorf("benchmark %s: %w", bench.Name, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runBenchmark replays a single benchmark on a fresh core.
func (h *Harness) runBenchmark(ctx context.Context, bench Benchmark) (BenchmarkResult, error) {
	events, err := trace.Synthesize(bench.Workload)
	if err != nil {
		return BenchmarkResult{}, err
	}

	c, err := core.NewCore(h.config.Core)
	if err != nil {
		return BenchmarkResult{}, err
	}

	tracer := predictor.NewBankTracer(c.Predictor().NumBanks(), nil)
	c.Predictor().AcceptHook(tracer)

	start := time.Now()
	if err := c.Replay(ctx, events); err != nil {
		return BenchmarkResult{}, err
	}
	wallTime := time.Since(start)

	stats := c.Stats()
	pStats := c.Predictor().Stats()
	result := BenchmarkResult{
		Name:                  bench.Name,
		Description:           bench.Description,
		InstructionsCommitted: stats.Instructions,
		Flushes:               stats.Flushes,
		Branches:              stats.Branches,
		Mispredictions:        stats.Mispredictions,
		AccuracyPercent:       stats.Accuracy(),
		MPKI:                  stats.MPKI(),
		PenaltyCycles:         stats.PenaltyCycles,
		Allocations:           pStats.Allocations,
		Promotions:            pStats.Promotions,
		StorageBits:           c.Predictor().StorageBits(),
		AllocationsByBank:     tracer.Allocations(),
		PromotionsByBank:      tracer.Promotions(),
		WallTime:              wallTime,
	}
	if h.config.Core.EnableReference {
		result.ReferenceAccuracyPercent = stats.ReferenceAccuracy()
	}

	for depth, d := range stats.ByDepth {
		result.ByDepth = append(result.ByDepth, DepthResult{
			Depth:              depth,
			Branches:           d.Branches,
			Mispredictions:     d.Mispredictions,
			PenaltyCycles:      d.PenaltyCycles,
			MispredictionRatio: d.MispredictionRate(),
		})
	}

	return result, nil
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== Convolution Predictor Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Branches ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions:    %d\n", r.InstructionsCommitted)
		_, _ = fmt.Fprintf(h.config.Output, "  Branches:        %d\n", r.Branches)
		_, _ = fmt.Fprintf(h.config.Output, "  Mispredictions:  %d\n", r.Mispredictions)
		_, _ = fmt.Fprintf(h.config.Output, "  Accuracy:        %.1f%%\n", r.AccuracyPercent)
		_, _ = fmt.Fprintf(h.config.Output, "  MPKI:            %.2f\n", r.MPKI)
		_, _ = fmt.Fprintf(h.config.Output, "  Penalty Cycles:  %d\n", r.PenaltyCycles)
		if r.ReferenceAccuracyPercent > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Reference:       %.1f%%\n", r.ReferenceAccuracyPercent)
		}
		if r.Flushes > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Flushes:         %d\n", r.Flushes)
		}

		_, _ = fmt.Fprintln(h.config.Output, "  --- Tables ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Allocations:     %d\n", r.Allocations)
		_, _ = fmt.Fprintf(h.config.Output, "  Promotions:      %d\n", r.Promotions)
		_, _ = fmt.Fprintf(h.config.Output, "  Storage:         %d bits\n", r.StorageBits)

		if h.config.Verbose {
			_, _ = fmt.Fprintln(h.config.Output, "  --- By Bank ---")
			for b := range r.AllocationsByBank {
				_, _ = fmt.Fprintf(h.config.Output, "  bank %d: %d allocated, %d promoted in\n",
					b, r.AllocationsByBank[b], r.PromotionsByBank[b])
			}

			_, _ = fmt.Fprintln(h.config.Output, "  --- By Dependence Depth ---")
			for _, d := range r.ByDepth {
				if d.Branches == 0 {
					continue
				}
				_, _ = fmt.Fprintf(h.config.Output, "  depth %d: %d branches, %d mispredicted (%.1f%%), %d penalty cycles\n",
					d.Depth, d.Branches, d.Mispredictions, d.MispredictionRatio, d.PenaltyCycles)
			}
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,instructions,branches,mispredictions,accuracy,mpki,penalty_cycles,reference_accuracy,allocations,promotions,storage_bits,flushes")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%d,%.3f,%.3f,%d,%.3f,%d,%d,%d,%d\n",
			r.Name,
			r.InstructionsCommitted,
			r.Branches,
			r.Mispredictions,
			r.AccuracyPercent,
			r.MPKI,
			r.PenaltyCycles,
			r.ReferenceAccuracyPercent,
			r.Allocations,
			r.Promotions,
			r.StorageBits,
			r.Flushes,
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config is the core configuration every benchmark ran with
	Config *core.Config `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// TotalInstructions is the sum of all committed instructions
	TotalInstructions uint64 `json:"total_instructions"`

	// TotalBranches is the sum of all resolved conditional branches
	TotalBranches uint64 `json:"total_branches"`

	// TotalMispredictions is the sum of all mispredictions
	TotalMispredictions uint64 `json:"total_mispredictions"`

	// AverageMPKI is the overall mispredictions per thousand instructions
	AverageMPKI float64 `json:"average_mpki"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalInstructions += r.InstructionsCommitted
		s.TotalBranches += r.Branches
		s.TotalMispredictions += r.Mispredictions
		s.TotalWallTime += r.WallTime
	}
	if s.TotalInstructions > 0 {
		s.AverageMPKI = float64(s.TotalMispredictions) * 1000 / float64(s.TotalInstructions)
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    h.config.Core,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
