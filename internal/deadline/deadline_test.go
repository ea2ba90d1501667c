package deadline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallOK(t *testing.T) {
	out := Call(context.Background(), time.Second, func(context.Context) (int, error) { return 7, nil })
	if !out.OK() || out.Value != 7 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestCallFailed(t *testing.T) {
	boom := errors.New("boom")
	out := Call(context.Background(), time.Second, func(context.Context) (int, error) { return 0, boom })
	if out.Status != StatusFailed || !errors.Is(out.Err, boom) {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestCallTimesOutWhenFnIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	out := Call(context.Background(), 50*time.Millisecond, func(context.Context) (string, error) {
		<-release
		return "late", nil
	})
	if out.Status != StatusTimedOut {
		t.Fatalf("expected timeout, got %+v", out)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Call returned after %v", elapsed)
	}
}

func TestCallRecoversPanic(t *testing.T) {
	out := Call(context.Background(), time.Second, func(context.Context) (int, error) { panic("kaboom") })
	if out.Status != StatusFailed || out.Err == nil {
		t.Fatalf("expected failed outcome from panic, got %+v", out)
	}
}

func TestCallParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := Call(ctx, time.Second, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if out.Status != StatusFailed || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected cancelled outcome, got %+v", out)
	}
}
