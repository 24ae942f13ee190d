// Command convpred replays recorded traces through the convolution branch
// predictor and reports accuracy broken down by load-dependence depth.
//
// Usage:
//
//	go run ./cmd/convpred [flags] <trace.cbor>...
//
// Each trace is replayed on its own core. With -db the per-instruction
// debug log of every trace is stored in a SQLite database as one run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/convpred/debuglog"
	"github.com/sarchlab/convpred/timing/core"
	"github.com/sarchlab/convpred/timing/predictor"
	"github.com/sarchlab/convpred/trace"
)

var (
	configPath = flag.String("config", "", "Path to core configuration file (TOML or JSON)")
	dbPath     = flag.String("db", "", "Store debug logs in this SQLite database")
	runName    = flag.String("name", "", "Run name prefix for stored debug logs")
	parallel   = flag.Int("parallel", 4, "Number of traces replayed at once")
	verbose    = flag.Bool("v", false, "Verbose output")
)

type replayResult struct {
	path  string
	stats core.Stats
	log   *debuglog.Log

	allocations []uint64
	promotions  []uint64
}

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: convpred [options] <trace.cbor>...\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	config := core.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = core.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *dbPath != "" {
		config.RecordDebugLog = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := replayAll(ctx, config, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		printStats(r, config.EnableReference)
	}

	if *dbPath != "" {
		if err := storeLogs(ctx, results); err != nil {
			fmt.Fprintf(os.Stderr, "Error storing debug logs: %v\n", err)
			os.Exit(1)
		}
	}
}

func replayAll(ctx context.Context, config *core.Config, paths []string) ([]replayResult, error) {
	results := make([]replayResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*parallel, 1))
	for i, path := range paths {
		g.Go(func() error {
			r, err := replayFile(ctx, config, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func replayFile(ctx context.Context, config *core.Config, path string) (replayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return replayResult{}, err
	}
	defer f.Close()

	c, err := core.NewCore(config)
	if err != nil {
		return replayResult{}, err
	}

	// -v also logs every allocation and promotion.
	var tableLog commonlog.Logger
	if *verbose {
		tableLog = commonlog.NewKeyValueLogger(commonlog.GetLogger("convpred.tables"), "trace", filepath.Base(path))
	}
	tracer := predictor.NewBankTracer(c.Predictor().NumBanks(), tableLog)
	c.Predictor().AcceptHook(tracer)

	if err := c.ReplayReader(ctx, trace.NewReader(f)); err != nil {
		return replayResult{}, err
	}

	return replayResult{
		path:        path,
		stats:       c.Stats(),
		log:         c.DebugLog(),
		allocations: tracer.Allocations(),
		promotions:  tracer.Promotions(),
	}, nil
}

func printStats(r replayResult, withReference bool) {
	s := r.stats
	fmt.Printf("=== %s ===\n", r.path)
	fmt.Printf("  Instructions:    %d\n", s.Instructions)
	fmt.Printf("  Flushes:         %d\n", s.Flushes)
	fmt.Printf("  Branches:        %d\n", s.Branches)
	fmt.Printf("  Mispredictions:  %d\n", s.Mispredictions)
	fmt.Printf("  Accuracy:        %.2f%%\n", s.Accuracy())
	fmt.Printf("  MPKI:            %.2f\n", s.MPKI())
	fmt.Printf("  Penalty cycles:  %d\n", s.PenaltyCycles)
	if withReference {
		fmt.Printf("  Reference:       %.2f%%\n", s.ReferenceAccuracy())
	}
	for depth, d := range s.ByDepth {
		if d.Branches == 0 {
			continue
		}
		fmt.Printf("  depth %d: %d branches, %.2f%% accurate\n",
			depth, d.Branches, d.Accuracy())
	}
	if *verbose {
		for b := range r.allocations {
			fmt.Printf("  bank %d: %d allocated, %d promoted in\n",
				b, r.allocations[b], r.promotions[b])
		}
	}
	fmt.Println()
}

func storeLogs(ctx context.Context, results []replayResult) error {
	store, err := debuglog.OpenStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, r := range results {
		if r.log == nil {
			continue
		}

		name := filepath.Base(r.path)
		if *runName != "" {
			name = *runName + "/" + name
		}

		id, err := store.SaveRun(ctx, name, r.log.Completed())
		if err != nil {
			return err
		}

		rows, err := store.DepthSummary(ctx, id)
		if err != nil {
			return err
		}

		fmt.Printf("Stored run %s (%s)\n", id, name)
		for _, row := range rows {
			fmt.Printf("  depth %d: %d/%d mispredicted\n",
				row.Depth, row.Mispredictions, row.Branches)
		}
	}
	return nil
}
