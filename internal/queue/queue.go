package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TopicCampaignDiscovered carries model.CampaignDiscovered payloads.
const TopicCampaignDiscovered = "campaign_discovered"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers payloads to in-process subscribers with retry.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	backoff    time.Duration
	log        logrus.FieldLogger
	wg         sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(log logrus.FieldLogger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		log:        log,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: q.maxRetries}
		q.wg.Add(1)
		go q.processJob(handler, job)
	}
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.wg.Done()
	log := q.log.WithField("topic", job.Topic)

	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			log.WithError(err).Errorf("Job permanently failed after %d attempts", job.MaxRetries)
			return
		}
		log.WithError(err).Warnf("Job failed (attempt %d/%d)", job.RetryCount, job.MaxRetries)

		// linear backoff before retry
		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job finished or gave up.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Queue = (*InMemoryQueue)(nil)
