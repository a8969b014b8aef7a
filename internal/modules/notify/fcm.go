// README: Firebase Cloud Messaging notifier, one topic per customer.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"marketpace/internal/types"
)

// Sender is the FCM client surface used here. *messaging.Client implements it.
type Sender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type FCMNotifier struct {
	sender Sender
}

func NewFCMNotifier(sender Sender) *FCMNotifier {
	return &FCMNotifier{sender: sender}
}

func CustomerTopic(customerID types.ID) string {
	return "customer_" + string(customerID)
}

func (n *FCMNotifier) Notify(ctx context.Context, customerID types.ID, label string) error {
	msg := &messaging.Message{
		Topic: CustomerTopic(customerID),
		Data: map[string]string{
			"type":  "delivery_status",
			"label": label,
		},
		Notification: &messaging.Notification{
			Title: "Delivery update",
			Body:  label,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending FCM to %s: %w", CustomerTopic(customerID), err)
	}
	return nil
}
