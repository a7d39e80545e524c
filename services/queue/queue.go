// Package queuesvc carries periodic task jobs from the beat to the workers over RabbitMQ.
package queuesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/schedule"
)

type (
	// publishChannel is the part of *amqp.Channel used to publish.
	publishChannel interface {
		PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	}

	// Publisher dispatches jobs to the exchange, routed by task name.
	Publisher struct {
		conn     *amqp.Connection
		channel  publishChannel
		exchange string
	}

	// Handler runs a job. Returning an error nacks the delivery.
	Handler func(ctx context.Context, job schedule.Job) error

	Consumer struct {
		conn    *amqp.Connection
		channel *amqp.Channel
		queue   string
		handler Handler
		logger  core.Logger
	}
)

var _ schedule.Dispatcher = (*Publisher)(nil)

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

func NewPublisher(conf core.MQConfig) (*Publisher, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	if err := declareExchange(ch, conf.Exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring exchange")
	}
	return &Publisher{conn: conn, channel: ch, exchange: conf.Exchange}, nil
}

func (p *Publisher) Close() {
	if ch, ok := p.channel.(*amqp.Channel); ok && ch != nil {
		_ = ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *Publisher) Dispatch(ctx context.Context, job schedule.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encoding job")
	}

	headers := make(amqp.Table, len(job.Headers))
	for k, v := range job.Headers {
		headers[k] = v
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, job.Task, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.ScheduledAt,
		Headers:      headers,
		Body:         body,
	})
	return errors.Wrapf(err, "publishing job %s", job.ID)
}

// NewConsumer declares the durable queue and binds it to the exchange for the given tasks.
func NewConsumer(conf core.MQConfig, tasks []string, handler Handler, logger core.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}

	c := &Consumer{conn: conn, channel: ch, queue: conf.Queue, handler: handler, logger: logger}
	if err := declareExchange(ch, conf.Exchange); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "declaring exchange")
	}
	if _, err := ch.QueueDeclare(conf.Queue, true, false, false, false, nil); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "declaring queue")
	}
	for _, task := range tasks {
		if err := ch.QueueBind(conf.Queue, task, conf.Exchange, false, nil); err != nil {
			c.Close()
			return nil, errors.Wrapf(err, "binding queue to %s", task)
		}
	}
	// one job at a time per worker
	if err := ch.Qos(1, 0, false); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "setting qos")
	}
	return c, nil
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Consume handles deliveries until ctx is done or the channel closes.
func (c *Consumer) Consume(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "registering consumer")
	}
	c.logger.Info("consumer started", map[string]interface{}{"queue": c.queue})

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// DecodeJob decodes a delivery body.
func DecodeJob(body []byte) (schedule.Job, error) {
	var job schedule.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return schedule.Job{}, errors.Wrap(err, "decoding job")
	}
	if job.Task == "" || job.Schema() == "" {
		return schedule.Job{}, errors.New("job has no task or tenant")
	}
	return job, nil
}

// handle acks every delivery once: undecodable ones are dropped, failed ones are requeued
// once then dropped.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	extra := map[string]interface{}{"message_id": d.MessageId, "routing_key": d.RoutingKey}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("consumer: handler panic", map[string]interface{}{"panic": r, "message_id": d.MessageId})
			_ = d.Nack(false, false)
		}
	}()

	job, err := DecodeJob(d.Body)
	if err != nil {
		c.logger.Error("consumer: dropping message", err, extra)
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, job); err != nil {
		requeue := !d.Redelivered
		extra["requeue"] = requeue
		c.logger.Error("consumer: job failed", err, extra)
		_ = d.Nack(false, requeue)
		return
	}

	extra["duration"] = time.Since(start).String()
	c.logger.Debug("consumer: job done", extra)
	_ = d.Ack(false)
}
