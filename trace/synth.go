package trace

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/convpred/insts"
)

// WorkloadKind selects the branch behaviour of a synthetic workload.
type WorkloadKind string

// Synthetic workloads.
const (
	// WorkloadLoop is a counted loop whose back edge is taken TripCount-1
	// times and then falls through.
	WorkloadLoop WorkloadKind = "loop"
	// WorkloadAlternating is a flags-only branch that flips every time.
	WorkloadAlternating WorkloadKind = "alternating"
	// WorkloadLoadDependent is a pointer chase of two loads feeding a
	// branch, giving the branch a dependence depth of 2.
	WorkloadLoadDependent WorkloadKind = "load-dependent"
	// WorkloadRandom is a flags-only branch with random direction.
	WorkloadRandom WorkloadKind = "random"
)

// Workloads lists every synthetic workload.
var Workloads = []WorkloadKind{
	WorkloadLoop, WorkloadAlternating, WorkloadLoadDependent, WorkloadRandom,
}

// Workload describes a synthetic trace.
type Workload struct {
	Kind WorkloadKind
	// Instructions is the number of committed instructions to generate.
	Instructions int
	// TripCount is the loop trip count of WorkloadLoop. Default is 8.
	TripCount int
	// Window is the number of instructions in flight between fetch and
	// commit. Default is 8.
	Window int
	// FlushEvery injects a squashed wrong-path load after every n-th
	// instruction. Zero disables flushes.
	FlushEvery int
	// Seed drives the random choices.
	Seed int64
}

// DefaultWorkload returns a workload of the given kind with default sizes.
func DefaultWorkload(kind WorkloadKind) Workload {
	return Workload{
		Kind:         kind,
		Instructions: 10000,
		TripCount:    8,
		Window:       8,
		Seed:         1,
	}
}

// dynInst is one dynamic instruction of a synthetic program.
type dynInst struct {
	pc   uint64
	exec insts.ExecuteInfo
}

// op builds a straight-line instruction from its ARM64 encoding.
func op(pc uint64, word uint32) dynInst {
	return dynInst{pc: pc, exec: insts.ExecuteInfo{
		Decode: insts.Classify(word),
		NextPC: pc + 4,
	}}
}

func load(pc uint64, word uint32, va uint64) dynInst {
	in := op(pc, word)
	in.exec.MemVA = va
	in.exec.MemSz = 8
	return in
}

func branch(pc uint64, word uint32, taken bool) dynInst {
	in := op(pc, word)
	in.exec.Taken = insts.SomeBool(taken)
	if taken {
		in.exec.NextPC = insts.NewDecoder().Decode(word).Target(pc)
	}
	return in
}

// Synthesize generates the event stream of a workload. Every instruction is
// fetched, decoded, resolved and committed in order, with up to Window
// instructions in flight.
func Synthesize(w Workload) ([]Event, error) {
	if w.Instructions <= 0 {
		return nil, fmt.Errorf("instructions must be positive, got %d", w.Instructions)
	}
	if w.TripCount <= 0 {
		w.TripCount = 8
	}
	if w.Window <= 0 {
		w.Window = 8
	}
	if w.FlushEvery < 0 {
		return nil, fmt.Errorf("flush interval must not be negative, got %d", w.FlushEvery)
	}

	rng := rand.New(rand.NewSource(w.Seed))

	var gen func(iter int) []dynInst
	switch w.Kind {
	case WorkloadLoop:
		gen = loopBody(w.TripCount)
	case WorkloadAlternating:
		gen = alternatingBody
	case WorkloadLoadDependent:
		gen = loadDependentBody
	case WorkloadRandom:
		gen = func(int) []dynInst { return randomBody(rng) }
	default:
		return nil, fmt.Errorf("unknown workload %q", w.Kind)
	}

	var prog []dynInst
	for iter := 0; len(prog) < w.Instructions; iter++ {
		prog = append(prog, gen(iter)...)
	}
	prog = prog[:w.Instructions]

	return schedule(prog, w.Window, w.FlushEvery), nil
}

func loopBody(trip int) func(int) []dynInst {
	const base = 0x1000
	return func(iter int) []dynInst {
		taken := iter%trip != trip-1
		body := []dynInst{
			op(base, insts.EncodeADDReg(1, 1, 2)),
			op(base+4, insts.EncodeADDImm(3, 1, 1)),
			op(base+8, insts.EncodeCMPImm(3, 0)),
			branch(base+12, insts.EncodeBCond(insts.CondNE, -12), taken),
		}
		if !taken {
			body = append(body, branch(base+16, insts.EncodeB(-16), true))
		}
		return body
	}
}

func alternatingBody(iter int) []dynInst {
	const base = 0x2000
	return []dynInst{
		op(base, insts.EncodeCMPImm(1, 0)),
		branch(base+4, insts.EncodeBCond(insts.CondEQ, 8), iter%2 == 0),
		branch(base+8, insts.EncodeB(-8), true),
	}
}

func loadDependentBody(iter int) []dynInst {
	const base = 0x3000
	node := uint64(0x10000 + (iter%64)*16)
	return []dynInst{
		load(base, insts.EncodeLDR(1, 5, 0), node),
		load(base+4, insts.EncodeLDR(2, 1, 8), node+8),
		// Taken on two of every three nodes.
		branch(base+8, insts.EncodeCBZ(2, 8), iter%3 != 0),
		op(base+12, insts.EncodeADDImm(4, 4, 1)),
		op(base+16, insts.EncodeCMPImm(4, 0)),
		branch(base+20, insts.EncodeBCond(insts.CondNE, -20), true),
	}
}

func randomBody(rng *rand.Rand) []dynInst {
	const base = 0x4000
	taken := rng.Intn(2) == 0
	return []dynInst{
		op(base, insts.EncodeCMPImm(6, 0)),
		branch(base+4, insts.EncodeBCond(insts.CondEQ, 8), taken),
		op(base+8, insts.EncodeADDImm(6, 6, 1)),
		branch(base+12, insts.EncodeB(-12), true),
	}
}

// schedule turns a program into events. Instructions retire in order once
// more than window younger instructions have been fetched.
func schedule(prog []dynInst, window, flushEvery int) []Event {
	type slot struct {
		seq uint64
		in  dynInst
	}

	var (
		events []Event
		queue  []slot
		cycle  uint64
	)

	retire := func(s slot) {
		exec := s.in.exec
		if exec.Decode.Class.IsCondBranch() {
			events = append(events, Event{Kind: KindResolve, SeqNo: s.seq, PC: s.in.pc, Cycle: cycle, Exec: &exec})
		}
		events = append(events, Event{Kind: KindCommit, SeqNo: s.seq, PC: s.in.pc, Cycle: cycle + 1, Exec: &exec})
	}

	for i, in := range prog {
		cycle++
		seq := uint64(i + 1)
		dec := in.exec.Decode

		events = append(events, Event{Kind: KindFetch, SeqNo: seq, PC: in.pc, Cycle: cycle})
		if dec.Class.IsCondBranch() {
			events = append(events, Event{Kind: KindPredict, SeqNo: seq, PC: in.pc, Cycle: cycle})
		}
		if dec.Class.IsBranch() {
			taken, _ := in.exec.Taken.Get()
			events = append(events,
				Event{Kind: KindSpecUpdate, SeqNo: seq, PC: in.pc, Cycle: cycle, Class: dec.Class, Taken: taken})
		}
		events = append(events, Event{Kind: KindDecode, SeqNo: seq, PC: in.pc, Cycle: cycle + 1, Decode: &dec})
		queue = append(queue, slot{seq: seq, in: in})

		if flushEvery > 0 && (i+1)%flushEvery == 0 {
			wrong := load(in.pc+0x100, insts.EncodeLDR(9, 1, 0), 0)
			wdec := wrong.exec.Decode
			events = append(events,
				Event{Kind: KindFetch, SeqNo: seq, Piece: 1, PC: wrong.pc, Cycle: cycle},
				Event{Kind: KindDecode, SeqNo: seq, Piece: 1, PC: wrong.pc, Cycle: cycle + 1, Decode: &wdec},
				Event{Kind: KindFlush, SeqNo: seq, Piece: 1, PC: wrong.pc, Cycle: cycle + 2},
			)
		}

		for len(queue) > window {
			retire(queue[0])
			queue = queue[1:]
		}
	}

	for _, s := range queue {
		cycle++
		retire(s)
	}

	return events
}
