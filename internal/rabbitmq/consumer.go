package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/epalmerini/snoop/internal/decode"
	"github.com/epalmerini/snoop/internal/randutil"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
	Durable    bool // Create a persistent queue
}

// Consumer reads messages over AMQP, either by subscribing (Consume) or by
// pulling and requeueing them (Peek).
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  Config
	logger  *slog.Logger
}

func NewConsumer(cfg Config, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ at %s: %w", RedactURL(cfg.URL), err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open channel: %w", err), conn.Close())
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		config:  cfg,
		logger:  logger.With("component", "consumer"),
	}, nil
}

// Consume subscribes with auto-ack. Without a queue name an exclusive
// auto-delete queue is bound to the configured exchange, so tailing never
// takes messages away from other consumers.
func (c *Consumer) Consume(ctx context.Context) (<-chan decode.Delivery, error) {
	queueName := c.config.QueueName
	exclusive := false
	autoDelete := false
	durable := c.config.Durable

	if queueName == "" {
		queueName = randutil.QueueName("snoop-tail")
		exclusive = true
		autoDelete = true
		durable = false
	}

	q, err := c.channel.QueueDeclarePassive(queueName, false, false, false, false, nil)
	if err != nil {
		// A failed passive declare closes the channel.
		var chanErr error
		c.channel, chanErr = c.conn.Channel()
		if chanErr != nil {
			return nil, fmt.Errorf("failed to reopen channel: %w", chanErr)
		}

		q, err = c.channel.QueueDeclare(queueName, durable, autoDelete, exclusive, false, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to declare queue: %w", err)
		}
		c.logger.Debug("declared queue", "queue", q.Name, "exclusive", exclusive, "durable", durable)
	}

	if c.config.Exchange != "" {
		if err := c.channel.QueueBind(q.Name, c.config.RoutingKey, c.config.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("failed to bind queue: %w", err)
		}
		c.logger.Debug("bound queue", "queue", q.Name, "exchange", c.config.Exchange, "routing_key", c.config.RoutingKey)
	}

	msgs, err := c.channel.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("consuming", "queue", q.Name)

	deliveries := make(chan decode.Delivery, 100)

	go func() {
		defer close(deliveries)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Warn("delivery channel closed", "queue", q.Name)
					return
				}
				select {
				case deliveries <- toDelivery(msg):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return deliveries, nil
}

// Peek pulls up to limit messages with basic.get and then rejects them all
// with requeue, leaving the queue as it was apart from the redelivered flag.
func (c *Consumer) Peek(ctx context.Context, queue string, limit int) ([]decode.Delivery, error) {
	var (
		out     []decode.Delivery
		lastTag uint64
		getErr  error
	)
	for len(out) < limit {
		if err := ctx.Err(); err != nil {
			getErr = err
			break
		}
		msg, ok, err := c.channel.Get(queue, false)
		if err != nil {
			getErr = fmt.Errorf("failed to get from %s: %w", queue, err)
			break
		}
		if !ok {
			break
		}
		out = append(out, toDelivery(msg))
		lastTag = msg.DeliveryTag
	}

	if lastTag != 0 {
		if err := c.channel.Nack(lastTag, true, true); err != nil {
			return nil, errors.Join(getErr, fmt.Errorf("failed to requeue peeked messages: %w", err))
		}
	}
	if getErr != nil {
		return nil, getErr
	}

	c.logger.Debug("peeked", "queue", queue, "count", len(out))
	return out, nil
}

func (c *Consumer) Close() error {
	var chanErr error
	if c.channel != nil {
		chanErr = c.channel.Close()
	}
	if c.conn != nil {
		return errors.Join(chanErr, c.conn.Close())
	}
	return chanErr
}

// toDelivery copies the parts of an AMQP delivery the decoder reads.
func toDelivery(msg amqp.Delivery) decode.Delivery {
	var ts int64
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp.Unix()
	}

	var headers map[string]any
	if msg.Headers != nil {
		headers = plainTable(msg.Headers)
	}

	return decode.Delivery{
		RoutingKey: msg.RoutingKey,
		Exchange:   msg.Exchange,
		Body:       msg.Body,
		Properties: decode.Properties{
			ContentType:     msg.ContentType,
			ContentEncoding: msg.ContentEncoding,
			MessageID:       msg.MessageId,
			CorrelationID:   msg.CorrelationId,
			Timestamp:       ts,
			Headers:         headers,
		},
	}
}

func plainTable(t amqp.Table) map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v any) any {
	switch v := v.(type) {
	case amqp.Table:
		return plainTable(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}
