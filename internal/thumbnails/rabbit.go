package thumbnails

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/johnrirwin/localtv/internal/logging"
)

// RabbitQueue is a durable Queue on a RabbitMQ queue. Messages are acked
// manually; a requeued job is republished with its attempt counter bumped.
type RabbitQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
	logger  *logging.Logger
	mu      sync.Mutex
}

func NewRabbitQueue(url, name string, prefetch int, logger *logging.Logger) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	return &RabbitQueue{conn: conn, channel: ch, name: name, logger: logger}, nil
}

func (q *RabbitQueue) Publish(_ context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.channel.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RabbitQueue) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := q.channel.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", q.name, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					q.logger.Warn("RabbitMQ delivery channel closed", logging.WithField("queue", q.name))
					return
				}

				var job Job
				if err := json.Unmarshal(msg.Body, &job); err != nil {
					q.logger.Error("Dropping undecodable thumbnail job", logging.WithFields(map[string]interface{}{
						"queue": q.name,
						"error": err.Error(),
					}))
					msg.Nack(false, false)
					continue
				}

				d := q.delivery(msg, job)
				select {
				case out <- d:
				case <-ctx.Done():
					msg.Nack(false, true)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (q *RabbitQueue) delivery(msg amqp.Delivery, job Job) Delivery {
	return Delivery{
		Job: job,
		ack: func() error { return msg.Ack(false) },
		nack: func(requeue bool) error {
			if !requeue {
				return msg.Nack(false, false)
			}
			retry := job
			retry.Attempt++
			if err := q.Publish(context.Background(), retry); err != nil {
				return msg.Nack(false, true)
			}
			return msg.Ack(false)
		},
	}
}

func (q *RabbitQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*RabbitQueue)(nil)
