package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/convpred/trace"
)

// Dispatch routes a recorded event to the matching hook.
func (c *Core) Dispatch(e trace.Event) error {
	id, err := e.ID()
	if err != nil {
		return err
	}

	switch e.Kind {
	case trace.KindFetch:
		c.OnFetch(id, e.PC, e.Cycle)
	case trace.KindPredict:
		_, err = c.OnPredict(id, e.PC, e.Cycle)
	case trace.KindSpecUpdate:
		err = c.OnSpecUpdate(id, e.Class, e.Taken)
	case trace.KindDecode:
		if e.Decode == nil {
			return fmt.Errorf("%v: missing decode info", e)
		}
		_, err = c.OnDecode(id, e.PC, *e.Decode)
	case trace.KindResolve:
		if e.Exec == nil {
			return fmt.Errorf("%v: missing execute info", e)
		}
		err = c.OnResolve(id, e.PC, *e.Exec, e.Cycle)
	case trace.KindCommit:
		if e.Exec == nil {
			return fmt.Errorf("%v: missing execute info", e)
		}
		err = c.OnCommit(id, e.PC, *e.Exec, e.Cycle)
	case trace.KindFlush:
		c.OnFlush(id)
	default:
		return fmt.Errorf("%v: unknown event kind", e)
	}

	if err != nil {
		return fmt.Errorf("%v: %w", e, err)
	}
	return nil
}

// Replay dispatches events in order and stops at the first error.
func (c *Core) Replay(ctx context.Context, events []trace.Event) error {
	for i, e := range events {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := c.Dispatch(e); err != nil {
			return err
		}
	}
	return nil
}

// ReplayReader dispatches every event of a trace stream.
func (c *Core) ReplayReader(ctx context.Context, r *trace.Reader) error {
	for i := 0; ; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.Dispatch(e); err != nil {
			return err
		}
	}
}
