package predictor

import (
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tliron/commonlog"
)

// BankTracer is a hook that counts allocations and promotions per bank.
// Attach it with AcceptHook.
type BankTracer struct {
	allocations []uint64
	promotions  []uint64
	log         commonlog.Logger
}

// NewBankTracer creates a tracer for a predictor with numBanks banks. A
// non-nil logger also gets one line per allocation and promotion.
func NewBankTracer(numBanks int, log commonlog.Logger) *BankTracer {
	return &BankTracer{
		allocations: make([]uint64, numBanks),
		promotions:  make([]uint64, numBanks),
		log:         log,
	}
}

// Func implements sim.Hook.
func (t *BankTracer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosAllocate:
		e, ok := ctx.Item.(Entry)
		if !ok || e.Bank >= len(t.allocations) {
			return
		}
		t.allocations[e.Bank]++
		if t.log != nil {
			t.log.Infof("allocate entry %d pc 0x%x bank %d", e.ID, e.PC, e.Bank)
		}
	case HookPosPromote:
		e, ok := ctx.Item.(Entry)
		if !ok || e.Bank >= len(t.promotions) {
			return
		}
		t.promotions[e.Bank]++
		if t.log != nil {
			from, _ := ctx.Detail.(int)
			t.log.Infof("promote entry %d pc 0x%x bank %d -> %d",
				e.ID, e.PC, from, e.Bank)
		}
	}
}

// Allocations returns the number of entries allocated in each bank.
func (t *BankTracer) Allocations() []uint64 {
	return append([]uint64(nil), t.allocations...)
}

// Promotions returns the number of entries promoted into each bank. Bank 0
// never receives a promotion.
func (t *BankTracer) Promotions() []uint64 {
	return append([]uint64(nil), t.promotions...)
}

// Reset clears the counts.
func (t *BankTracer) Reset() {
	clear(t.allocations)
	clear(t.promotions)
}
