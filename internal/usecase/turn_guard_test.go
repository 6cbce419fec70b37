package usecase

import (
	"context"
	"errors"
	"testing"

	"lumen-agent/internal/domain"
)

func TestTurnGuardSingleFlight(t *testing.T) {
	var g TurnGuard

	ctx, release, err := g.Acquire(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := g.Active(); got != "t1" {
		t.Errorf("Active = %q, want t1", got)
	}

	if _, _, err := g.Acquire(context.Background(), "t2"); !errors.Is(err, domain.ErrTurnInFlight) {
		t.Fatalf("second Acquire err = %v, want ErrTurnInFlight", err)
	}

	if !g.Stop() {
		t.Fatal("Stop returned false with a turn in flight")
	}
	if ctx.Err() == nil {
		t.Error("turn context not cancelled by Stop")
	}
	if !g.Stopped() {
		t.Error("Stopped = false after Stop")
	}

	release()
	release()
	if g.Active() != "" {
		t.Error("guard still active after release")
	}
	if g.Stop() {
		t.Error("Stop returned true with no turn")
	}

	_, release2, err := g.Acquire(context.Background(), "t3")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if g.Stopped() {
		t.Error("Stopped carried over to the next turn")
	}
	release2()
}

func TestTurnGuardReleaseCancels(t *testing.T) {
	var g TurnGuard
	ctx, release, err := g.Acquire(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	release()
	if ctx.Err() == nil {
		t.Error("context still live after release")
	}
}
