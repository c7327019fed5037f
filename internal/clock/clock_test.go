package clock

import (
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewManual(start)
	clk.Advance(90 * time.Second)
	if got := clk.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Fatalf("unexpected advanced time %s", got)
	}
	clk.Set(start)
	if got := clk.Now(); !got.Equal(start) {
		t.Fatalf("unexpected reset time %s", got)
	}
	if (RealClock{}).Now().Location() != time.UTC {
		t.Fatalf("real clock must report UTC")
	}
}
