package config

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	rabbitMQMaxRetries = 10
	rabbitMQRetryDelay = 3 * time.Second
)

// InitRabbitMQ dials the broker, retrying while it starts up
func InitRabbitMQ(cfg RabbitMQConfig) (*amqp.Connection, error) {
	var (
		conn *amqp.Connection
		err  error
	)

	for i := 0; i < rabbitMQMaxRetries; i++ {
		conn, err = amqp.Dial(cfg.URL())
		if err == nil {
			logrus.Infof("Successfully connected to RabbitMQ at %s", cfg.Host)
			return conn, nil
		}

		if i < rabbitMQMaxRetries-1 {
			logrus.Warnf("Failed to connect to RabbitMQ (attempt %d/%d): %v. Retrying in %v...",
				i+1, rabbitMQMaxRetries, err, rabbitMQRetryDelay)
			time.Sleep(rabbitMQRetryDelay)
		}
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", rabbitMQMaxRetries, err)
}

// PurgeQueue removes all messages from a queue without deleting the queue itself
func PurgeQueue(conn *amqp.Connection, queueName string) (int, error) {
	if conn == nil {
		return 0, fmt.Errorf("RabbitMQ connection not initialized")
	}

	ch, err := conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	n, err := ch.QueuePurge(
		queueName, // queue name
		false,     // noWait
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue %s: %w", queueName, err)
	}

	logrus.Infof("Purged %d messages from RabbitMQ queue: %s", n, queueName)
	return n, nil
}

func declareQueue(ch *amqp.Channel, queueName string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
}
