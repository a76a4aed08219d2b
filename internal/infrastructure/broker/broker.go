package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// ConsumerConfig describes where sync requests arrive.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Prefetch int
	Batch    BatchConfig
}

// Consumer subscribes to the sync request fanout exchange and forwards
// requests to a Coalescer.
type Consumer struct {
	cfg    ConsumerConfig
	logger *logrus.Logger

	conn      *amqp.Connection
	channel   *amqp.Channel
	wg        sync.WaitGroup
	coalescer *Coalescer
}

func NewConsumer(cfg ConsumerConfig, trigger TriggerFunc, logger *logrus.Logger) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("exchange name cannot be empty")
	}
	return &Consumer{
		cfg:       cfg,
		logger:    logger,
		coalescer: NewCoalescer(cfg.Batch, trigger, logger),
	}, nil
}

// Start connects and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn
	c.coalescer.Run(ctx)

	deliveries, err := c.subscribe()
	if err != nil {
		c.Close(ctx)
		return err
	}
	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)

	c.logger.Infof("rabbitmq consumer started: exchange=%s", c.cfg.Exchange)
	return nil
}

// Close stops consumption, flushes pending requests, and releases resources.
func (c *Consumer) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
	return c.coalescer.Stop(ctx)
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", c.cfg.Exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue %s to %s: %w", queue.Name, c.cfg.Exchange, err)
	}
	if err := ch.Qos(max(c.cfg.Prefetch, 1), 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("start consume: %w", err)
	}
	c.channel = ch
	return deliveries, nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.WithField("exchange", c.cfg.Exchange)
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handleDelivery(&delivery); err != nil {
				log.WithError(err).Warn("failed to process sync request")
				// Only malformed requests end up here; they would fail again on redelivery.
				_ = delivery.Nack(false, false)
				continue
			}
			if err := delivery.Ack(false); err != nil {
				log.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

func (c *Consumer) handleDelivery(delivery *amqp.Delivery) error {
	msg, err := DecodeRequest(delivery.Body)
	if err != nil {
		return err
	}
	return c.coalescer.Add(msg)
}

// DecodeRequest parses a sync request body. An empty body requests a full run.
func DecodeRequest(body []byte) (SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if len(body) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return SyncRequestMessage{}, fmt.Errorf("decode payload: %w", err)
	}
	if _, _, err := msg.Target(); err != nil {
		return SyncRequestMessage{}, err
	}
	return msg, nil
}
