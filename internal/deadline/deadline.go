// Package deadline bounds calls to external dependencies and reports how
// they ended as a tagged Outcome instead of a bare error.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Status int

const (
	StatusOK Status = iota
	StatusTimedOut
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "failed"
	}
}

// Outcome is the result of Call. Value is meaningful only when Status is
// StatusOK; Err is set when Status is StatusFailed.
type Outcome[T any] struct {
	Value  T
	Status Status
	Err    error
}

func (o Outcome[T]) OK() bool { return o.Status == StatusOK }

// Call runs fn with a context that expires after d and returns no later
// than d, even when fn ignores cancellation. A panic in fn is reported as
// StatusFailed. d <= 0 means no deadline beyond ctx.
func Call[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) Outcome[T] {
	cancel := func() {}
	if d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	}
	defer cancel()

	done := make(chan Outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Outcome[T]{Status: StatusFailed, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		switch {
		case err == nil:
			done <- Outcome[T]{Value: v, Status: StatusOK}
		case errors.Is(err, context.DeadlineExceeded):
			done <- Outcome[T]{Status: StatusTimedOut, Err: err}
		default:
			done <- Outcome[T]{Status: StatusFailed, Err: err}
		}
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Outcome[T]{Status: StatusTimedOut, Err: ctx.Err()}
		}
		return Outcome[T]{Status: StatusFailed, Err: ctx.Err()}
	}
}
