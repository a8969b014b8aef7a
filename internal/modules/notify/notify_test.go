package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"

	"marketpace/internal/types"
)

type published struct {
	exchange string
	key      string
	body     []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{exchange, key, body})
	return nil
}

type fakeSender struct {
	msgs []*messaging.Message
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.msgs = append(f.msgs, msg)
	return "projects/p/messages/1", nil
}

func TestRabbitNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRabbitNotifier(pub, "marketpace.events")
	n.now = func() time.Time { return time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC) }

	if err := n.Notify(context.Background(), "buyer-1", "out for delivery"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	got := pub.msgs[0]
	if got.exchange != "marketpace.events" || got.key != "delivery.out_for_delivery" {
		t.Fatalf("unexpected routing: %s %s", got.exchange, got.key)
	}
	var m Message
	if err := json.Unmarshal(got.body, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.CustomerID != "buyer-1" || m.Label != "out for delivery" {
		t.Fatalf("unexpected body: %+v", m)
	}
}

func TestFCMNotifierUsesCustomerTopic(t *testing.T) {
	sender := &fakeSender{}
	if err := NewFCMNotifier(sender).Notify(context.Background(), "seller-9", "item picked up"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.msgs) != 1 {
		t.Fatalf("expected 1 message")
	}
	msg := sender.msgs[0]
	if msg.Topic != "customer_seller-9" || msg.Data["label"] != "item picked up" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMultiFansOutAndJoinsErrors(t *testing.T) {
	pub := &fakePublisher{}
	sender := &fakeSender{err: errors.New("fcm down")}
	m := Multi{NewRabbitNotifier(pub, "x"), NewFCMNotifier(sender), nil}

	err := m.Notify(context.Background(), types.ID("b1"), "delivered")
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("rabbit channel should still receive the message")
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"delivered":          "delivered",
		"Driver En Route":    "driver_en_route",
		" pickup complete ":  "pickup_complete",
		"item returning/now": "item_returning_now",
	}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Fatalf("slug(%q) = %q, want %q", in, got, want)
		}
	}
}
