package awaitutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mcpcore/client-go/internal/awaitutil"
	"github.com/mcpcore/client-go/mcperrors"
)

func TestAwaitResolves(t *testing.T) {
	c := awaitutil.NewCompletion[int]()
	c.Resolve(42)
	got, err := awaitutil.Await(context.Background(), c, time.Second, "op")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestAwaitRejects(t *testing.T) {
	c := awaitutil.NewCompletion[int]()
	want := errors.New("boom")
	c.Reject(want)
	_, err := awaitutil.Await(context.Background(), c, time.Second, "op")
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	c := awaitutil.NewCompletion[int]()
	_, err := awaitutil.Await(context.Background(), c, 10*time.Millisecond, "slow-op")
	var timeoutErr *mcperrors.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("err = %v, want *mcperrors.TimeoutError", err)
	}
	if timeoutErr.Operation != "slow-op" {
		t.Errorf("Operation = %q, want slow-op", timeoutErr.Operation)
	}
}

func TestAwaitHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := awaitutil.NewCompletion[int]()
	_, err := awaitutil.Await(ctx, c, time.Second, "op")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// TestAwaitResolvesOnlyOnce covers spec §8 invariant 2: a completion
// resolves or fails exactly once, regardless of how many times Resolve is
// called afterward.
func TestAwaitResolvesOnlyOnce(t *testing.T) {
	c := awaitutil.NewCompletion[int]()
	c.Resolve(1)
	c.Resolve(2)
	c.Reject(errors.New("too late"))

	got, err := awaitutil.Await(context.Background(), c, time.Second, "op")
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1 (first Resolve wins)", got)
	}
}

// TestAwaitIsRepeatable lets a second caller observe the same outcome as
// the first, matching ConnectAsync's "idempotent, same completion" rule.
func TestAwaitIsRepeatable(t *testing.T) {
	c := awaitutil.NewCompletion[int]()
	c.Resolve(7)

	for i := 0; i < 3; i++ {
		got, err := awaitutil.Await(context.Background(), c, time.Second, "op")
		if err != nil {
			t.Fatalf("Await #%d: %v", i, err)
		}
		if got != 7 {
			t.Fatalf("Await #%d = %d, want 7", i, got)
		}
	}
}
