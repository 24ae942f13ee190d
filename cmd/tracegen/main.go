// Command tracegen writes a synthetic pipeline event trace.
//
// Usage:
//
//	go run ./cmd/tracegen -workload load-dependent -n 100000 -o chase.cbor
//
// The output is a stream of CBOR-encoded events that cmd/convpred replays.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/convpred/trace"
)

func main() {
	def := trace.DefaultWorkload(trace.WorkloadLoop)

	workload := flag.String("workload", string(trace.WorkloadLoop),
		fmt.Sprintf("Workload kind %v", trace.Workloads))
	n := flag.Int("n", def.Instructions, "Number of committed instructions")
	trip := flag.Int("trip", def.TripCount, "Loop trip count")
	window := flag.Int("window", def.Window, "Instructions in flight between fetch and commit")
	flushEvery := flag.Int("flush-every", 0, "Inject a squashed wrong-path load every n instructions")
	seed := flag.Int64("seed", def.Seed, "Random seed")
	output := flag.String("o", "", "Output file (default: stdout)")
	flag.Parse()

	w := trace.Workload{
		Kind:         trace.WorkloadKind(*workload),
		Instructions: *n,
		TripCount:    *trip,
		Window:       *window,
		FlushEvery:   *flushEvery,
		Seed:         *seed,
	}

	events, err := trace.Synthesize(w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		out, err = os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output: %v\n", err)
			os.Exit(1)
		}
		defer out.Close()
	}

	buf := bufio.NewWriter(out)
	if err := trace.WriteAll(buf, events); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing trace: %v\n", err)
		os.Exit(1)
	}
	if err := buf.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing trace: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Wrote %d events\n", len(events))
}
