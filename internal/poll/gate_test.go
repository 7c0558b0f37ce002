package poll

import (
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestGateRejectsSameComponent(t *testing.T) {
	g := NewGate(testLogger())

	if !g.Start("LED") {
		t.Fatal("first command must pass")
	}
	if g.Start("LED") {
		t.Fatal("second command for same component must be rejected")
	}
	if g.Remaining("LED") != CooldownTicks {
		t.Errorf("Remaining = %d, want %d (rejection must not restart the countdown)",
			g.Remaining("LED"), CooldownTicks)
	}
}

func TestGateAllowsDifferentComponent(t *testing.T) {
	g := NewGate(testLogger())

	if !g.Start("LED") {
		t.Fatal("LED must pass")
	}
	if !g.Start("FAN") {
		t.Fatal("FAN must pass while LED cools down")
	}
}

func TestGateCountsDownToZero(t *testing.T) {
	g := NewGate(testLogger())
	g.Start("PUMP1")

	for i := CooldownTicks; i > 0; i-- {
		if got := g.Remaining("PUMP1"); got != i {
			t.Fatalf("after %d ticks Remaining = %d, want %d", CooldownTicks-i, got, i)
		}
		g.Tick()
	}
	if got := g.Remaining("PUMP1"); got != 0 {
		t.Fatalf("Remaining after full countdown = %d, want 0", got)
	}
	if !g.Start("PUMP1") {
		t.Fatal("component must accept commands again after the countdown")
	}
}

func TestGateCancelClearsImmediately(t *testing.T) {
	g := NewGate(testLogger())
	g.Start("FAN")
	g.Tick()

	g.Cancel("FAN")
	if g.Remaining("FAN") != 0 {
		t.Fatalf("Remaining after cancel = %d, want 0", g.Remaining("FAN"))
	}
	if !g.Start("FAN") {
		t.Fatal("cancelled component must accept a retry immediately")
	}
}
