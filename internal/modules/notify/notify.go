// README: Customer status notifications: fan-out over RabbitMQ and FCM, failures are logged not returned to callers.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketpace/internal/types"
)

type Notifier interface {
	Notify(ctx context.Context, customerID types.ID, label string) error
}

// Message is the payload every channel carries.
type Message struct {
	CustomerID types.ID  `json:"customer_id"`
	Label      string    `json:"label"`
	SentAt     time.Time `json:"sent_at"`
}

// Multi sends to every channel and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, customerID types.ID, label string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, customerID, label); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes notifications to the logger. Used when no broker is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Notify(ctx context.Context, customerID types.ID, label string) error {
	l.log.Info("customer notified", zap.String("customer_id", string(customerID)), zap.String("label", label))
	return nil
}

// slug turns a label into a routing-key or topic safe token.
func slug(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
