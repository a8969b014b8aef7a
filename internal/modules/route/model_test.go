package route

import (
	"testing"
	"time"

	"marketpace/internal/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusAvailable, StatusAccepted, true},
		{StatusAccepted, StatusActive, true},
		{StatusAccepted, StatusBailed, true},
		{StatusActive, StatusPaused, true},
		{StatusPaused, StatusActive, true},
		{StatusActive, StatusCompleted, true},
		{StatusPaused, StatusBailed, true},
		{StatusBailed, StatusAvailable, true},
		{StatusAvailable, StatusActive, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusPaused, StatusCompleted, false},
		{StatusCompleted, StatusBailed, false},
		{StatusCompleted, StatusAvailable, false},
		{StatusAvailable, StatusBailed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	driver := types.ID("d1")
	r := &Route{
		ID:       "r1",
		DriverID: &driver,
		Orders:   []Order{{ID: "o1"}},
		Stops:    []Stop{{ID: "s1", EstimatedAt: &now}},
	}
	cp := r.Clone()
	*cp.DriverID = "d2"
	cp.Orders[0].Late = true
	later := now.Add(time.Hour)
	*cp.Stops[0].EstimatedAt = later
	cp.Stops[0].Status = StopCompleted

	if *r.DriverID != "d1" || r.Orders[0].Late || !r.Stops[0].EstimatedAt.Equal(now) || r.Stops[0].Status != "" {
		t.Fatalf("clone shares state with original: %+v", r)
	}
}

func TestAllStopsTerminal(t *testing.T) {
	r := &Route{}
	if r.AllStopsTerminal() {
		t.Fatalf("route without stops is not complete")
	}
	r.Stops = []Stop{{Status: StopCompleted}, {Status: StopRejected}}
	if !r.AllStopsTerminal() {
		t.Fatalf("completed and rejected stops are terminal")
	}
	r.Stops = append(r.Stops, Stop{Status: StopDelivering})
	if r.AllStopsTerminal() {
		t.Fatalf("delivering stop is not terminal")
	}
}

func TestOrderTips(t *testing.T) {
	o := Order{BuyerTip: types.USD(300), SellerTip: types.USD(200)}
	if o.Tips() != types.USD(500) {
		t.Fatalf("expected $5.00, got %s", o.Tips())
	}
}
