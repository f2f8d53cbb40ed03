// Package compensate runs multi-step store writes with registered undo steps.
package compensate

import (
	"context"
	"errors"
	"fmt"
)

// Tx collects compensations for the steps that already succeeded.
type Tx struct {
	undo []step
}

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// Defer registers fn to run if the enclosing WithRollback fails.
// Compensations run in reverse registration order.
func (tx *Tx) Defer(name string, fn func(ctx context.Context) error) {
	tx.undo = append(tx.undo, step{name: name, fn: fn})
}

func (tx *Tx) Len() int { return len(tx.undo) }

// WithRollback runs fn. When fn fails every registered compensation runs and
// the original error is returned; compensation failures are joined onto it.
// Compensations run on a context detached from ctx's cancellation so a
// cancelled request still cleans up.
func WithRollback(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	tx := &Tx{}
	err := fn(ctx, tx)
	if err == nil {
		return nil
	}

	cleanupCtx := context.WithoutCancel(ctx)
	var undoErrs []error
	for i := len(tx.undo) - 1; i >= 0; i-- {
		s := tx.undo[i]
		if uerr := s.fn(cleanupCtx); uerr != nil {
			undoErrs = append(undoErrs, &RollbackError{Step: s.name, Err: uerr})
		}
	}
	if len(undoErrs) == 0 {
		return err
	}
	return errors.Join(append([]error{err}, undoErrs...)...)
}

// RollbackError reports a compensation that failed.
type RollbackError struct {
	Step string
	Err  error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback %s: %v", e.Step, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
