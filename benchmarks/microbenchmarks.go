package benchmarks

import "github.com/sarchlab/convpred/trace"

// GetMicrobenchmarks returns the standard set of synthetic benchmarks.
// Each benchmark targets one branch behaviour.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		shortLoop(),
		longLoop(),
		alternating(),
		pointerChase(),
		pointerChaseSquashed(),
		randomBranches(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick validation.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		shortLoop(),
		alternating(),
		pointerChase(),
	}
}

func workload(kind trace.WorkloadKind, mutate func(*trace.Workload)) trace.Workload {
	w := trace.DefaultWorkload(kind)
	if mutate != nil {
		mutate(&w)
	}
	return w
}

// 1. Short loop - back edge taken 3 of 4 times
func shortLoop() Benchmark {
	return Benchmark{
		Name:        "loop_short",
		Description: "Counted loop with trip count 4 - exit is periodic in history",
		Workload: workload(trace.WorkloadLoop, func(w *trace.Workload) {
			w.TripCount = 4
		}),
	}
}

// 2. Long loop - exit beyond the shortest banks' reach
func longLoop() Benchmark {
	return Benchmark{
		Name:        "loop_long",
		Description: "Counted loop with trip count 32 - needs the longer banks",
		Workload: workload(trace.WorkloadLoop, func(w *trace.Workload) {
			w.TripCount = 32
		}),
	}
}

// 3. Alternating - T/N/T/N on a flags-only branch
func alternating() Benchmark {
	return Benchmark{
		Name:        "alternating",
		Description: "Flags-only branch flipping every execution",
		Workload:    workload(trace.WorkloadAlternating, nil),
	}
}

// 4. Pointer chase - two loads feeding a cbz
func pointerChase() Benchmark {
	return Benchmark{
		Name:        "pointer_chase",
		Description: "Branch on the end of a two-load chain - dependence depth 2",
		Workload:    workload(trace.WorkloadLoadDependent, nil),
	}
}

// 5. Pointer chase with squashed wrong-path loads
func pointerChaseSquashed() Benchmark {
	return Benchmark{
		Name:        "pointer_chase_squashed",
		Description: "Pointer chase with a flushed wrong-path load every 7 instructions",
		Workload: workload(trace.WorkloadLoadDependent, func(w *trace.Workload) {
			w.FlushEvery = 7
		}),
	}
}

// 6. Random - unpredictable baseline
func randomBranches() Benchmark {
	return Benchmark{
		Name:        "random",
		Description: "Uniformly random branch - accuracy should stay near 50%",
		Workload:    workload(trace.WorkloadRandom, nil),
	}
}
