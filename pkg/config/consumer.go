package config

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ErrDeliveriesClosed is returned by Consume when the broker closes the delivery channel
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Consumer reads messages from one durable queue
type Consumer struct {
	channel *amqp.Channel
	queue   string
}

// NewConsumer declares queueName and opens a channel with a prefetch of one,
// so messages are handled in order.
func NewConsumer(conn *amqp.Connection, queueName string) (*Consumer, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection not initialized")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := declareQueue(ch, queueName)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	return &Consumer{
		channel: ch,
		queue:   q.Name,
	}, nil
}

// Consume feeds every delivery to handler until ctx is done. A nil result acks the
// message; an error nacks it back onto the queue.
func (c *Consumer) Consume(ctx context.Context, handler func([]byte) error) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",    // consumer
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}

	logrus.Infof("Consumer is running on queue: %s", c.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			deliver(msg, handler)
		}
	}
}

func deliver(msg amqp.Delivery, handler func([]byte) error) {
	if err := handler(msg.Body); err != nil {
		logrus.Errorf("Handle msg failed: %v", err)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logrus.Errorf("Nack failed: %v", nackErr)
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		logrus.Errorf("Ack failed: %v", ackErr)
	}
}

// Close closes the consumer channel
func (c *Consumer) Close() error {
	return c.channel.Close()
}
