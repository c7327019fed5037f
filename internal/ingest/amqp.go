package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alertdesk/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpHandleTimeout = 30 * time.Second

// AMQPConsumer consumes detections from a durable RabbitMQ queue.
// Stored messages are acked, invalid ones rejected, and failed stores requeued after a delay.
type AMQPConsumer struct {
	conn         *amqp.Connection
	ch           *amqp.Channel
	tag          string
	sink         Sink
	logger       *slog.Logger
	requeueDelay time.Duration
	done         chan struct{}
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewAMQPConsumer declares the queue (and binding when an exchange is set) and starts consuming.
// Params: AMQP ingest config, sink, and optional logger.
// Returns: running consumer or initialization error.
func NewAMQPConsumer(cfg config.AMQPIngestConfig, sink Sink, logger *slog.Logger) (*AMQPConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect amqp ingest: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	deliveries, err := ch.Consume(
		cfg.Queue,       // queue
		cfg.ConsumerTag, // consumer
		false,           // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("consume %q: %w", cfg.Queue, err)
	}

	consumer := newAMQPConsumer(sink, logger, time.Duration(cfg.RequeueDelayMS)*time.Millisecond)
	consumer.conn = conn
	consumer.ch = ch
	consumer.tag = cfg.ConsumerTag
	go consumer.run(deliveries)
	return consumer, nil
}

func newAMQPConsumer(sink Sink, logger *slog.Logger, requeueDelay time.Duration) *AMQPConsumer {
	return &AMQPConsumer{
		sink:         sink,
		logger:       logger,
		requeueDelay: requeueDelay,
		done:         make(chan struct{}),
		stop:         make(chan struct{}),
	}
}

func declareTopology(ch *amqp.Channel, cfg config.AMQPIngestConfig) error {
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set amqp prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	); err != nil {
		return fmt.Errorf("declare queue %q: %w", cfg.Queue, err)
	}
	if strings.TrimSpace(cfg.Exchange) == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}
	routingKey := cfg.RoutingKey
	if strings.TrimSpace(routingKey) == "" {
		routingKey = cfg.Queue
	}
	if err := ch.QueueBind(cfg.Queue, routingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", cfg.Queue, cfg.Exchange, err)
	}
	return nil
}

// run settles deliveries until the channel closes.
func (c *AMQPConsumer) run(deliveries <-chan amqp.Delivery) {
	defer close(c.done)
	for delivery := range deliveries {
		c.handle(delivery)
	}
}

func (c *AMQPConsumer) handle(delivery amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), amqpHandleTimeout)
	defer cancel()

	var err error
	switch process(ctx, c.sink, SourceAMQP, c.logger, delivery.Body) {
	case dispositionRetry:
		c.holdBeforeRequeue()
		err = delivery.Nack(false, true)
	case dispositionDrop:
		err = delivery.Reject(false)
	default:
		err = delivery.Ack(false)
	}
	if err != nil {
		c.logger.Warn("amqp settle failed", "delivery_tag", delivery.DeliveryTag, "err", err)
	}
}

// holdBeforeRequeue delays a requeue so a failing store is not hammered by redeliveries.
// Close cuts the wait short.
func (c *AMQPConsumer) holdBeforeRequeue() {
	if c.requeueDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.requeueDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.stop:
	}
}

// Close cancels the consumer, waits for in-flight deliveries, and closes the connection.
func (c *AMQPConsumer) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	if c.ch == nil {
		return nil
	}
	if err := c.ch.Cancel(c.tag, false); err != nil {
		c.logger.Warn("amqp cancel failed", "err", err)
	}
	select {
	case <-c.done:
	case <-time.After(amqpHandleTimeout):
	}
	_ = c.ch.Close()
	return c.conn.Close()
}
