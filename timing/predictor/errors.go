package predictor

import "errors"

// ErrUnknownInstruction is returned when an update or commit names an
// instruction that has no in-flight record. It indicates that the caller
// broke the predict-before-update protocol.
var ErrUnknownInstruction = errors.New("unknown instruction")

// ErrDuplicateInstruction is returned when an instruction is predicted
// while a previous prediction for the same id is still in flight.
var ErrDuplicateInstruction = errors.New("instruction already in flight")

// ErrMalformedIdentifier is returned when an instruction id cannot be
// packed.
var ErrMalformedIdentifier = errors.New("malformed instruction identifier")

// ErrCapacityExceeded is the panic value (wrapped) for history or weight
// accesses outside their declared bounds.
var ErrCapacityExceeded = errors.New("capacity exceeded")
