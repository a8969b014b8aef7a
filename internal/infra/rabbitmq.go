// README: RabbitMQ connection with startup retry, topic exchange declaration and JSON publishing.
package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	mqMaxRetries   = 10
	mqPublishLimit = 5 * time.Second
)

type RabbitMQ struct {
	url      string
	exchange string
	log      *zap.Logger

	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// NewRabbitMQ connects with exponential backoff and declares a durable topic exchange.
func NewRabbitMQ(ctx context.Context, url, exchange string, log *zap.Logger) (*RabbitMQ, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mq := &RabbitMQ{url: url, exchange: exchange, log: log}

	delay := time.Second
	for attempt := 1; attempt <= mqMaxRetries; attempt++ {
		err := mq.connect()
		if err == nil {
			log.Info("rabbitmq connected", zap.Int("attempt", attempt), zap.String("exchange", exchange))
			return mq, nil
		}
		log.Warn("rabbitmq connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", mqMaxRetries),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		if attempt == mqMaxRetries {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", mqMaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * 1.5)
			if delay > 30*time.Second {
				delay = 30 * time.Second
			}
		}
	}
	return nil, errors.New("rabbitmq: retry loop exited")
}

func (mq *RabbitMQ) connect() error {
	conn, err := amqp.Dial(mq.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if mq.exchange != "" {
		if err := ch.ExchangeDeclare(mq.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("declare exchange %s: %w", mq.exchange, err)
		}
	}

	mq.mu.Lock()
	mq.conn = conn
	mq.ch = ch
	mq.mu.Unlock()
	return nil
}

// Publish sends a persistent JSON message.
func (mq *RabbitMQ) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	mq.mu.RLock()
	ch := mq.ch
	closed := mq.closed
	mq.mu.RUnlock()

	if closed || ch == nil {
		return errors.New("rabbitmq channel not available")
	}

	ctx, cancel := context.WithTimeout(ctx, mqPublishLimit)
	defer cancel()

	return ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
}

func (mq *RabbitMQ) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.closed {
		return
	}
	mq.closed = true
	if mq.ch != nil {
		_ = mq.ch.Close()
	}
	if mq.conn != nil {
		_ = mq.conn.Close()
	}
	mq.log.Info("rabbitmq closed")
}
