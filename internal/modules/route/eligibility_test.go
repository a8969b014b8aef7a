package route

import (
	"testing"
	"time"
)

func at(hh, mm int) time.Time {
	return time.Date(2026, 5, 2, hh, mm, 0, 0, time.UTC)
}

func TestCanAccept(t *testing.T) {
	r := &Route{StartTime: at(10, 0)}
	cases := []struct {
		now  time.Time
		want bool
	}{
		{at(9, 30), true},
		{at(9, 39), true},
		{at(9, 40), false},
		{at(9, 41), false},
		{at(10, 30), false},
	}
	for _, tc := range cases {
		if got := CanAccept(r, tc.now); got != tc.want {
			t.Fatalf("CanAccept at %s: expected %v, got %v", tc.now.Format("15:04"), tc.want, got)
		}
	}
	if CanAccept(nil, at(8, 0)) || CanAccept(&Route{}, at(8, 0)) {
		t.Fatalf("route without a start time never accepts")
	}
}

func TestCanStartPickup(t *testing.T) {
	r := &Route{StartTime: at(10, 0)}
	cases := []struct {
		now  time.Time
		want bool
	}{
		{at(9, 44), false},
		{at(9, 45), true},
		{at(9, 46), true},
		{at(11, 0), true},
	}
	for _, tc := range cases {
		if got := CanStartPickup(r, tc.now); got != tc.want {
			t.Fatalf("CanStartPickup at %s: expected %v, got %v", tc.now.Format("15:04"), tc.want, got)
		}
	}
	if CanStartPickup(nil, at(10, 0)) {
		t.Fatalf("nil route cannot start")
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	r := &Route{StartTime: at(10, 0)}
	now := at(9, 42)
	if CanAccept(r, now) {
		t.Fatalf("acceptance should be closed at 9:42")
	}
	if CanStartPickup(r, now) {
		t.Fatalf("pickups should not open until 9:45")
	}
}

func TestWindow(t *testing.T) {
	r := &Route{StartTime: at(10, 0)}

	w := Window(r, at(9, 10).Add(30*time.Second))
	if !w.Open || w.MinutesUntilClosed != 29 || !w.ClosesAt.Equal(at(9, 40)) {
		t.Fatalf("unexpected window: %+v", w)
	}
	w = Window(r, at(9, 50))
	if w.Open || w.MinutesUntilClosed != 0 {
		t.Fatalf("closed window should report zero minutes: %+v", w)
	}
	if w := Window(nil, at(9, 0)); w.Open {
		t.Fatalf("nil route window should be closed")
	}
}
