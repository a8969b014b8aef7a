package route

import (
	"testing"
	"time"
)

func TestEstimateDuration(t *testing.T) {
	r := &Route{TotalMiles: 10, Stops: make([]Stop, 4)}
	// 4*5 + 4*3 + 10*2
	if got := EstimateDuration(r); got != 52*time.Minute {
		t.Fatalf("expected 52m, got %s", got)
	}
	if EstimateDuration(nil) != 0 {
		t.Fatalf("nil route has no duration")
	}
}

func TestUpdatedETA(t *testing.T) {
	now := at(12, 0)
	if got := UpdatedETA(4, now); !got.Equal(at(12, 27)) {
		t.Fatalf("expected 12:27, got %s", got.Format("15:04"))
	}
	if got := UpdatedETA(0, now); !got.Equal(at(12, 30)) {
		t.Fatalf("unknown distance should assume 5 miles, got %s", got.Format("15:04"))
	}
}
