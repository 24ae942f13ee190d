package predictor

import "github.com/sarchlab/akita/v4/sim"

// Hook positions invoked by GeometricPredictor. The hook item is an Entry
// (a copy) for HookPosAllocate and HookPosPromote, and a Snapshot for
// HookPosPredict and HookPosUpdate.
var (
	HookPosAllocate = &sim.HookPos{Name: "Predictor Allocate"}
	HookPosPredict  = &sim.HookPos{Name: "Predictor Predict"}
	HookPosUpdate   = &sim.HookPos{Name: "Predictor Update"}
	HookPosPromote  = &sim.HookPos{Name: "Predictor Promote"}
)

// UpdateDetail is the hook detail attached to HookPosUpdate.
type UpdateDetail struct {
	Resolved  bool
	Predicted bool
	Zeroed    int
	Promoted  bool
}

func (p *GeometricPredictor) invoke(pos *sim.HookPos, item, detail any) {
	if p.NumHooks() == 0 {
		return
	}
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
