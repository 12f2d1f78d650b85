package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"counter-chain/internal/config"
	xerrors "counter-chain/internal/errors"
)

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes persistent JSON messages to a durable queue
// through the default exchange.
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	ch    amqpChannel
	queue string
}

// NewRabbitMQPublisher dials the broker and declares the queue.
func NewRabbitMQPublisher(cfg config.RabbitMQConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rabbitmq url is empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "counter.runs"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "connect rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "open rabbitmq channel")
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, fmt.Sprintf("declare queue %s", queue))
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitMQPublisher) Sink() Sink { return SinkRabbitMQ }

func (p *RabbitMQPublisher) Publish(ctx context.Context, o Outcome) error {
	body, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    o.RunID,
		Timestamp:    o.FinishedAt,
		Type:         "counter.run." + o.Status,
		Body:         body,
	})
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
