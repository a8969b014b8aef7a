// README: RabbitMQ notification publisher (topic exchange, delivery.<label> routing keys).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketpace/internal/types"
)

// Publisher is the broker side. infra.RabbitMQ implements it.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

type RabbitNotifier struct {
	pub      Publisher
	exchange string
	now      func() time.Time
}

func NewRabbitNotifier(pub Publisher, exchange string) *RabbitNotifier {
	return &RabbitNotifier{pub: pub, exchange: exchange, now: time.Now}
}

func RoutingKey(label string) string {
	return "delivery." + slug(label)
}

func (n *RabbitNotifier) Notify(ctx context.Context, customerID types.ID, label string) error {
	body, err := json.Marshal(Message{CustomerID: customerID, Label: label, SentAt: n.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.pub.Publish(ctx, n.exchange, RoutingKey(label), body); err != nil {
		return fmt.Errorf("publish notification for %s: %w", customerID, err)
	}
	return nil
}
