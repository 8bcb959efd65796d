package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPQueue publishes JSON payloads to durable RabbitMQ queues named after
// the topic and consumes them back. A dropped connection is redialled on the
// next Publish.
type AMQPQueue struct {
	url      string
	log      logrus.FieldLogger
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// DialAMQP connects to the broker at url.
func DialAMQP(url string, log logrus.FieldLogger) (*AMQPQueue, error) {
	q := &AMQPQueue{url: url, log: log, declared: map[string]bool{}}
	if err := q.connect(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) connect() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	q.conn, q.ch = conn, ch
	q.declared = map[string]bool{}
	return nil
}

// Publish marshals payload and publishes it persistently to the topic queue.
func (q *AMQPQueue) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err = q.publish(topic, body)
	if errors.Is(err, amqp.ErrClosed) {
		q.log.Warn("RabbitMQ connection closed, redialling")
		if err = q.connect(); err != nil {
			return err
		}
		err = q.publish(topic, body)
	}
	return err
}

func (q *AMQPQueue) publish(topic string, body []byte) error {
	if err := q.declare(topic); err != nil {
		return err
	}

	return q.ch.Publish(
		"",    // default exchange
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// Subscribe consumes the topic queue and hands each message body ([]byte) to
// handler. A failed first delivery is requeued once; a failed redelivery is
// dropped. The consumer stops when the connection closes.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	if err := q.declare(topic); err != nil {
		q.mu.Unlock()
		return err
	}
	msgs, err := q.ch.Consume(
		topic, // queue
		"",    // consumer
		false, // autoAck = false for reliability
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	q.mu.Unlock()
	if err != nil {
		return fmt.Errorf("consume %s: %w", topic, err)
	}

	go func() {
		log := q.log.WithField("topic", topic)
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				if !d.Redelivered {
					log.WithError(err).Warn("Message failed, requeueing")
					d.Nack(false, true)
					continue
				}
				log.WithError(err).Error("Message failed on redelivery, dropping")
			}
			d.Ack(false)
		}
		log.Info("Consumer stopped")
	}()
	return nil
}

func (q *AMQPQueue) declare(topic string) error {
	if q.declared[topic] {
		return nil
	}
	if _, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}
	q.declared[topic] = true
	return nil
}

// Close closes the channel and connection.
func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*AMQPQueue)(nil)
