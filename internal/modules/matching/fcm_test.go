package matching

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
)

type captureSender struct {
	msgs []*messaging.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg *messaging.Message) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.msgs = append(c.msgs, msg)
	return "projects/x/messages/1", nil
}

func TestFCMOfferSender(t *testing.T) {
	cs := &captureSender{}
	s := NewFCMOfferSender(cs)
	if err := s.SendOffer(context.Background(), "d1", testOffer("r1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(cs.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(cs.msgs))
	}
	m := cs.msgs[0]
	if m.Topic != "driver_d1" {
		t.Errorf("topic = %q", m.Topic)
	}
	if m.Data["route_id"] != "r1" || m.Data["type"] != "route_offer" {
		t.Errorf("unexpected data %v", m.Data)
	}
	if m.Data["estimated_earnings"] != "$69.44" || m.Data["stops"] != "4" {
		t.Errorf("unexpected offer fields %v", m.Data)
	}
	if m.Android == nil || m.Android.Priority != "high" {
		t.Error("expected high android priority")
	}

	cs.err = errors.New("boom")
	if err := s.SendOffer(context.Background(), "d1", testOffer("r1")); err == nil {
		t.Fatal("expected error")
	}
}
