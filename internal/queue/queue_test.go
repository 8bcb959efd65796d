package queue

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-notifier/internal/logging"
)

func TestPublishWithoutSubscribers(t *testing.T) {
	q := NewInMemoryQueue(logging.Discard())
	assert.Error(t, q.Publish(TopicCampaignDiscovered, "GC1"))
}

func TestPublishDeliversToSubscribers(t *testing.T) {
	q := NewInMemoryQueue(logging.Discard())
	got := make(chan any, 2)
	require.NoError(t, q.Subscribe(TopicCampaignDiscovered, func(p any) error { got <- p; return nil }))
	require.NoError(t, q.Subscribe(TopicCampaignDiscovered, func(p any) error { got <- p; return nil }))

	require.NoError(t, q.Publish(TopicCampaignDiscovered, "GC1"))
	q.Wait()

	assert.Len(t, got, 2)
	assert.Equal(t, "GC1", <-got)
}

func TestPublishRetriesFailingHandler(t *testing.T) {
	q := NewInMemoryQueue(logging.Discard())
	q.backoff = time.Millisecond

	var attempts atomic.Int32
	require.NoError(t, q.Subscribe("t", func(any) error {
		if attempts.Add(1) < 3 {
			return errors.New("try again")
		}
		return nil
	}))

	require.NoError(t, q.Publish("t", 1))
	q.Wait()
	assert.Equal(t, int32(3), attempts.Load())
}

func TestPublishGivesUpAfterMaxRetries(t *testing.T) {
	q := NewInMemoryQueue(logging.Discard())
	q.backoff = time.Millisecond

	var attempts atomic.Int32
	require.NoError(t, q.Subscribe("t", func(any) error {
		attempts.Add(1)
		return errors.New("always")
	}))

	require.NoError(t, q.Publish("t", 1))
	q.Wait()
	assert.Equal(t, int32(4), attempts.Load())
}
