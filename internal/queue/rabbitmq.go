// Package queue carries domain verification requests over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// VerifyMessage asks a consumer to check one domain
type VerifyMessage struct {
	UserID   int `json:"userId"`
	DomainID int `json:"domainId"`
}

// Dial connects to the broker
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// Publisher sends verification requests to a durable queue
type Publisher struct {
	ch     *amqp.Channel
	queue  string
	mu     sync.Mutex
	closed bool
}

// NewPublisher opens a channel and declares the queue
func NewPublisher(conn *amqp.Connection, queue string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	return &Publisher{ch: ch, queue: queue}, nil
}

// TriggerVerify enqueues a check of the domain
func (p *Publisher) TriggerVerify(ctx context.Context, userID, domainID int) error {
	body, err := json.Marshal(VerifyMessage{UserID: userID, DomainID: domainID})
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publisher is closed")
	}

	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close closes the channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.ch.Close()
}

// Consumer receives verification requests
type Consumer struct {
	ch  *amqp.Channel
	q   amqp.Queue
	log *logrus.Entry
}

// NewConsumer opens a channel with the given prefetch and declares the queue
func NewConsumer(conn *amqp.Connection, queue string, prefetch int) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}
	return &Consumer{ch: ch, q: q, log: logrus.WithField("component", "verify-consumer")}, nil
}

// Close closes the channel
func (c *Consumer) Close() error { return c.ch.Close() }

// Handle runs handler for each message until ctx ends. A failed message is
// requeued once; the periodic domain worker covers anything dropped after that.
func (c *Consumer) Handle(ctx context.Context, handler func(context.Context, VerifyMessage) error) error {
	msgs, err := c.ch.Consume(c.q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-msgs:
			if !ok {
				return errors.New("consumer channel closed")
			}

			c.deliver(ctx, m, handler)
		}
	}
}

// settlement is what happens to a delivery after handling
type settlement int

const (
	settleAck settlement = iota
	settleDrop
	settleRequeue
)

// settle picks the fate of a delivery. Malformed messages are dropped and a
// failed message is requeued only on its first delivery.
func settle(decodeErr, handleErr error, redelivered bool) settlement {
	switch {
	case decodeErr != nil:
		return settleDrop
	case handleErr == nil:
		return settleAck
	case redelivered:
		return settleDrop
	default:
		return settleRequeue
	}
}

func (c *Consumer) deliver(ctx context.Context, m amqp.Delivery, handler func(context.Context, VerifyMessage) error) settlement {
	msg, decodeErr := decodeVerify(m.Body)
	var handleErr error
	if decodeErr != nil {
		c.log.WithError(decodeErr).Warn("dropping malformed message")
	} else if handleErr = handler(ctx, msg); handleErr != nil {
		c.log.WithError(handleErr).WithField("domain_id", msg.DomainID).Error("verify failed")
	}

	outcome := settle(decodeErr, handleErr, m.Redelivered)
	switch outcome {
	case settleAck:
		_ = m.Ack(false)
	case settleDrop:
		_ = m.Nack(false, false)
	case settleRequeue:
		_ = m.Nack(false, true)
	}
	return outcome
}

func decodeVerify(body []byte) (VerifyMessage, error) {
	var msg VerifyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("invalid verify message: %w", err)
	}
	if msg.DomainID <= 0 || msg.UserID <= 0 {
		return msg, fmt.Errorf("invalid verify message: missing ids")
	}
	return msg, nil
}
