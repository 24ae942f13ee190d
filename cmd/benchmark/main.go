// Command benchmark runs the synthetic predictor benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output a JSON report
//	-config     Path to core configuration file
//	-parallel   Number of benchmarks run at once
//	-core-only  Run only the quick validation set
//	-v          Break results down by dependence depth
//
// Example:
//
//	# Compare two predictor configurations
//	go run ./cmd/benchmark -config small.toml -csv > small.csv
//	go run ./cmd/benchmark -config large.toml -csv > large.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/sarchlab/convpred/benchmarks"
	"github.com/sarchlab/convpred/timing/core"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as a JSON report")
	configPath := flag.String("config", "", "Path to core configuration file (TOML or JSON)")
	parallel := flag.Int("parallel", 1, "Number of benchmarks run at once")
	coreOnly := flag.Bool("core-only", false, "Run only the core benchmark set")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	verbosity := -1
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	config := benchmarks.DefaultConfig()
	config.Output = os.Stdout
	config.Parallelism = *parallel
	config.Verbose = *verbose
	if *configPath != "" {
		coreConfig, err := core.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		config.Core = coreConfig
	}

	harness := benchmarks.NewHarness(config)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("Convolution Predictor Benchmark Harness")
		fmt.Println("=======================================")
		fmt.Printf("Banks:     %v\n", config.Core.Predictor.HistoryLengths)
		fmt.Printf("Reference: %v\n", config.Core.EnableReference)
		fmt.Println("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := harness.RunAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		fmt.Println("=== Summary ===")
		fmt.Printf("Benchmarks:   %d\n", summary.TotalBenchmarks)
		fmt.Printf("Instructions: %d\n", summary.TotalInstructions)
		fmt.Printf("Branches:     %d\n", summary.TotalBranches)
		fmt.Printf("MPKI:         %.2f\n", summary.AverageMPKI)
	}
}
